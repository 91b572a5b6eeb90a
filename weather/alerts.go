package weather

// AlertSeverity grades an advisory.
type AlertSeverity string

const (
	AlertWarning AlertSeverity = "warning"
	AlertInfo    AlertSeverity = "info"
)

// Alert is a condition-derived advisory for display alongside the current
// weather.
type Alert struct {
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
}

// Advisory thresholds, against metric readings (°C, m/s).
const (
	heatAdvisoryTemp = 35.0
	highWindSpeed    = 10.0
)

// Alerts derives advisories from the current conditions: a heat warning above
// 35°C, a wind notice above 10 m/s, and a precipitation notice when the
// condition is rain. Thresholds assume metric readings. Returns nil when
// nothing applies.
func (c Current) Alerts() []Alert {
	var alerts []Alert
	if c.Temperature > heatAdvisoryTemp {
		alerts = append(alerts, Alert{
			Severity:    AlertWarning,
			Title:       "Heat Advisory",
			Description: "High temperatures expected. Stay hydrated and avoid outdoor activities.",
		})
	}
	if c.WindSpeed > highWindSpeed {
		alerts = append(alerts, Alert{
			Severity:    AlertInfo,
			Title:       "High Wind",
			Description: "Strong winds detected. Secure loose outdoor objects.",
		})
	}
	if c.Condition == "Rain" {
		alerts = append(alerts, Alert{
			Severity:    AlertInfo,
			Title:       "Precipitation",
			Description: "Rainy conditions expected. Carry an umbrella.",
		})
	}
	return alerts
}
