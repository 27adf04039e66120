package tempiro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jgoulah/tempirobridge/pkg/models"
)

// The vendor invalidates bearer tokens after a week; refresh a day early.
const tokenLifetime = 6 * 24 * time.Hour

// AuthError represents an authentication failure
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Client is an authenticated client for the Tempiro smart-breaker API
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

// New creates a Tempiro API client. The token is fetched lazily on first use.
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		// The vendor API is slow on large interval queries
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

// getToken returns a cached bearer token, authenticating when missing or expired
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpires) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"Username": c.username,
		"Password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("authentication failed (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Message: "token endpoint returned empty access_token"}
	}

	c.token = tokenResp.AccessToken
	c.tokenExpires = time.Now().Add(tokenLifetime)
	return c.token, nil
}

// do issues an authenticated request and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		respBody, _ := io.ReadAll(resp.Body)
		// Drop the cached token so the next call re-authenticates
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("authentication failed (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// deviceResponse matches the vendor's device payload
type deviceResponse struct {
	ID           string  `json:"Id"`
	Name         string  `json:"Name"`
	DeviceID     string  `json:"DeviceId"`
	Value        float64 `json:"Value"`
	CurrentPower float64 `json:"CurrentPower"`
	BatteryOK    bool    `json:"BatteryOK"`
	FuseVoltage  bool    `json:"FuseVoltageOK"`
	OfflineFlag  bool    `json:"OfflineFlag"`
	LastUpdate   string  `json:"LastUpdate"`
	SpotArea     string  `json:"spotArea"`
	HoursActive  float64 `json:"hoursActive"`
}

// Devices lists all breaker devices with their current status
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	var raw []deviceResponse
	if err := c.do(ctx, http.MethodGet, "/api/Devices", nil, &raw); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, models.Device{
			ID:           d.ID,
			Name:         d.Name,
			DeviceID:     d.DeviceID,
			Value:        d.Value,
			CurrentPower: d.CurrentPower,
			BatteryOK:    d.BatteryOK,
			FuseVoltage:  d.FuseVoltage,
			Offline:      d.OfflineFlag,
			LastUpdate:   d.LastUpdate,
			SpotArea:     d.SpotArea,
			HoursActive:  d.HoursActive,
		})
	}
	return devices, nil
}

// valueResponse matches the vendor's interval value payload
type valueResponse struct {
	DateTime         string  `json:"DateTime"`
	DeltaPower       float64 `json:"DeltaPower"`
	AccumulatedValue float64 `json:"AccumulatedValue"`
	CurrentValue     float64 `json:"CurrentValue"`
}

// Values fetches interval samples for a device between from and to
func (c *Client) Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error) {
	path := fmt.Sprintf("/api/Values/%s/interval?from=%s&to=%s&intervalMinutes=%d",
		deviceID, from.Format(models.TimeLayout), to.Format(models.TimeLayout), intervalMinutes)

	var raw []valueResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	readings := make([]models.Reading, 0, len(raw))
	for _, v := range raw {
		ts, err := time.ParseInLocation(models.TimeLayout, v.DateTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing sample timestamp %q: %w", v.DateTime, err)
		}
		readings = append(readings, models.Reading{
			DeviceID:         deviceID,
			Timestamp:        ts,
			DeltaPower:       v.DeltaPower,
			AccumulatedValue: v.AccumulatedValue,
			CurrentValue:     v.CurrentValue,
		})
	}
	return readings, nil
}

// Switch turns a device on (1) or off (0)
func (c *Client) Switch(ctx context.Context, deviceID string, value int) error {
	payload := map[string]any{"Value": value, "Id": deviceID}
	return c.do(ctx, http.MethodPut, "/api/Switch/"+deviceID, payload, nil)
}
