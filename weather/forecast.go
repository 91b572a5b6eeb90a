package weather

import (
	"sort"
	"time"
)

// DailySummary condenses one calendar day of 3-hour readings.
type DailySummary struct {
	Date              time.Time `json:"date"` // midnight UTC of the day
	TempMin           float64   `json:"tempMin"`
	TempMax           float64   `json:"tempMax"`
	ConditionID       int       `json:"conditionId"`
	Condition         string    `json:"condition"`
	Icon              string    `json:"icon"`
	PrecipProbability float64   `json:"precipProbability"` // max over the day
}

// Daily buckets the 3-hour entries by UTC calendar day, ordered
// chronologically. Min/max temperature span the whole day, precipitation
// probability is the day's maximum, and the representative condition is the
// reading closest to midday (what the weekly grid shows).
func (f Forecast) Daily() []DailySummary {
	if len(f.Entries) == 0 {
		return nil
	}

	byDay := make(map[time.Time][]ForecastEntry)
	for _, e := range f.Entries {
		day := time.Date(e.Time.Year(), e.Time.Month(), e.Time.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day] = append(byDay[day], e)
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	summaries := make([]DailySummary, 0, len(days))
	for _, day := range days {
		entries := byDay[day]
		s := DailySummary{
			Date:    day,
			TempMin: entries[0].TempMin,
			TempMax: entries[0].TempMax,
		}
		midday := day.Add(12 * time.Hour)
		best := entries[0]
		bestDist := absDuration(entries[0].Time.Sub(midday))
		for _, e := range entries {
			if e.TempMin < s.TempMin {
				s.TempMin = e.TempMin
			}
			if e.TempMax > s.TempMax {
				s.TempMax = e.TempMax
			}
			if e.PrecipProbability > s.PrecipProbability {
				s.PrecipProbability = e.PrecipProbability
			}
			if d := absDuration(e.Time.Sub(midday)); d < bestDist {
				best, bestDist = e, d
			}
		}
		s.ConditionID = best.ConditionID
		s.Condition = best.Condition
		s.Icon = best.Icon
		summaries = append(summaries, s)
	}
	return summaries
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
