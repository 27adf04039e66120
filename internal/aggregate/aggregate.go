// Package aggregate joins energy readings with spot prices. Everything here
// is a pure function over rows the store already fetched, so the cost math
// stays deterministic and testable without a database.
package aggregate

import (
	"sort"
	"time"

	"github.com/jgoulah/tempirobridge/pkg/models"
)

// PriceIndex maps hour-start timestamps to a spot price in öre/kWh
type PriceIndex map[time.Time]float64

// IndexPrices builds a lookup of price-per-hour from spot price rows
func IndexPrices(prices []models.SpotPrice) PriceIndex {
	idx := make(PriceIndex, len(prices))
	for _, p := range prices {
		idx[hourOf(p.Timestamp)] = p.PriceOre
	}
	return idx
}

func hourOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// Hourly groups readings into per-device hourly stats and prices each hour.
// An hour with no matching price contributes zero cost; prices with no
// readings produce no rows.
func Hourly(readings []models.Reading, prices []models.SpotPrice) []models.HourlyStat {
	idx := IndexPrices(prices)

	type key struct {
		hour   time.Time
		device string
	}
	groups := make(map[key]*models.HourlyStat)
	samples := make(map[key]int)
	active := make(map[key]int)

	for _, r := range readings {
		k := key{hourOf(r.Timestamp), r.DeviceID}
		stat, ok := groups[k]
		if !ok {
			stat = &models.HourlyStat{
				Hour:       k.hour,
				DeviceID:   r.DeviceID,
				DeviceName: r.DeviceName,
			}
			groups[k] = stat
		}
		stat.EnergyKWh += r.EnergyKWh()
		samples[k]++
		if r.CurrentValue > 0 {
			active[k]++
		}
	}

	stats := make([]models.HourlyStat, 0, len(groups))
	for k, stat := range groups {
		stat.ActiveRatio = float64(active[k]) / float64(samples[k])
		if price, ok := idx[k.hour]; ok {
			stat.SpotPriceOre = price
			stat.PriceKnown = true
			stat.CostSEK = stat.EnergyKWh * price / 100
		}
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].Hour.Equal(stats[j].Hour) {
			return stats[i].Hour.Before(stats[j].Hour)
		}
		return stats[i].DeviceID < stats[j].DeviceID
	})
	return stats
}

// Daily rolls hourly stats up into per-device daily summaries. Cost is the
// sum of hourly energy times the hour's own price, with missing prices
// counting as zero.
func Daily(readings []models.Reading, prices []models.SpotPrice) []models.DailySummary {
	hourly := Hourly(readings, prices)

	type key struct {
		date   string
		device string
	}
	groups := make(map[key]*models.DailySummary)

	for _, h := range hourly {
		k := key{h.Hour.Format("2006-01-02"), h.DeviceID}
		sum, ok := groups[k]
		if !ok {
			sum = &models.DailySummary{
				Date:       k.date,
				DeviceID:   h.DeviceID,
				DeviceName: h.DeviceName,
			}
			groups[k] = sum
		}
		sum.EnergyKWh += h.EnergyKWh
		sum.CostSEK += h.CostSEK
		sum.HoursWithData++
	}

	summaries := make([]models.DailySummary, 0, len(groups))
	for _, sum := range groups {
		summaries = append(summaries, *sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Date != summaries[j].Date {
			return summaries[i].Date < summaries[j].Date
		}
		return summaries[i].DeviceID < summaries[j].DeviceID
	})
	return summaries
}
