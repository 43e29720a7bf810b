package enrichment

import (
	"fmt"
	"math"
	"strings"

	"github.com/skycast/server/pkg/description"
	"github.com/skycast/server/pkg/types"
	"github.com/skycast/server/pkg/weather"
)

// WeatherMarker is the section header written into activity descriptions.
// Its presence is the idempotence signal: a description containing it is
// never enriched again.
const WeatherMarker = "🌤 Weather:"

// windDirections is an 8-point compass rose.
var windDirections = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func windCardinal(deg int) string {
	d := math.Mod(float64(deg), 360)
	if d < 0 {
		d += 360
	}
	return windDirections[int(math.Round(d/45.0))%8]
}

// FormatSummary renders the weather record into the description section,
// honouring the account's unit system and verbosity preferences.
func FormatSummary(rec *weather.Record, prefs types.WeatherPreferences) string {
	var b strings.Builder

	condition := rec.Description
	if condition == "" {
		condition = rec.Condition
	}

	if prefs.Units == "imperial" {
		b.WriteString(fmt.Sprintf("%s %d°F (feels like %d°F), %s",
			WeatherMarker, toFahrenheit(rec.Temperature), toFahrenheit(rec.FeelsLike), condition))
	} else {
		b.WriteString(fmt.Sprintf("%s %d°C (feels like %d°C), %s",
			WeatherMarker, rec.Temperature, rec.FeelsLike, condition))
	}

	if prefs.IncludeDetails {
		b.WriteString(fmt.Sprintf("\nHumidity %d%% • Wind %s %s",
			rec.Humidity, formatWindSpeed(rec.WindSpeed, prefs.Units), windCardinal(rec.WindDeg)))
		if rec.WindGust > rec.WindSpeed {
			b.WriteString(fmt.Sprintf(" (gusts %s)", formatWindSpeed(rec.WindGust, prefs.Units)))
		}
		b.WriteString(fmt.Sprintf("\nClouds %d%% • Visibility %d km • UV %.1f",
			rec.CloudCover, rec.Visibility, rec.UVIndex))
	}

	return b.String()
}

// ApplySummary places the formatted section into the description per the
// account preference. An existing weather section is replaced, not
// duplicated, so the write stays idempotent-safe even past the gate.
func ApplySummary(existing, summary string, prefs types.WeatherPreferences) string {
	if strings.Contains(existing, WeatherMarker) {
		return replaceExisting(existing, summary)
	}
	if prefs.Placement == "prepend" {
		if existing == "" {
			return summary
		}
		return summary + "\n\n" + existing
	}
	if existing == "" {
		return summary
	}
	return existing + "\n\n" + summary
}

func replaceExisting(existing, summary string) string {
	return description.ReplaceSection(existing, WeatherMarker, summary)
}

func toFahrenheit(celsius int) int {
	return int(math.Round(float64(celsius)*9.0/5.0 + 32))
}

func formatWindSpeed(metersPerSecond float64, units string) string {
	if units == "imperial" {
		return fmt.Sprintf("%.1f mph", metersPerSecond*2.23694)
	}
	return fmt.Sprintf("%.1f m/s", metersPerSecond)
}
