package elpris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jgoulah/tempirobridge/pkg/models"
)

// DefaultBaseURL is the public elprisetjustnu.se price API
const DefaultBaseURL = "https://www.elprisetjustnu.se/api/v1/prices"

// Client fetches Nordic hourly spot prices
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a spot price client. An empty baseURL uses the public API.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// pricePoint matches one entry of the elprisetjustnu.se response
type pricePoint struct {
	SEKPerKWh float64   `json:"SEK_per_kWh"`
	EURPerKWh float64   `json:"EUR_per_kWh"`
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
}

// PricesForDate fetches hourly spot prices for one date and price area.
// A 404 means the date has no published prices yet (tomorrow's prices appear
// around 13:00) and returns nil, nil rather than an error.
func (c *Client) PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error) {
	url := fmt.Sprintf("%s/%s_%s.json", c.baseURL, date.Format("2006/01-02"), area)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw []pricePoint
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding prices: %w", err)
	}

	prices := make([]models.SpotPrice, 0, len(raw))
	for _, p := range raw {
		prices = append(prices, models.SpotPrice{
			// Hour start in local time so readings and prices join on the hour
			Timestamp: p.TimeStart.Local().Truncate(time.Hour),
			PriceArea: area,
			PriceOre:  p.SEKPerKWh * 100,
			PriceEUR:  p.EURPerKWh,
		})
	}
	return prices, nil
}
