// Package recommend maps the latest soil and climate reading to a crop suggestion.
package recommend

import "github.com/kjstillabower/smart-farm-service/internal/models"

type rule struct {
	match  func(temp, hum float64, soil int, status string) bool
	result models.Recommendation
}

// Rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		match: func(temp, hum float64, soil int, status string) bool {
			return status == "Wet" && soil > 70 && hum > 50 && temp > 20 && temp < 35
		},
		result: models.Recommendation{
			Name:    "Rice 🌾",
			Details: "Rice grows well in clayey soil with standing water.",
			Dos:     []string{"Maintain water levels", "Split N applications"},
			Donts:   []string{"Avoid sandy soils", "Avoid drought during establishment"},
		},
	},
	{
		match: func(temp, hum float64, soil int, status string) bool {
			return status == "Dry" && soil > 50 && hum < 60 && temp > 18 && temp < 30
		},
		result: models.Recommendation{
			Name:    "Wheat 🌱",
			Details: "Wheat prefers loamy soil and moderate watering.",
			Dos:     []string{"Ensure drainage", "Apply phosphorus"},
			Donts:   []string{"Avoid waterlogging", "Don't over-irrigate"},
		},
	},
	{
		match: func(temp, hum float64, soil int, _ string) bool {
			return soil > 40 && hum > 40 && temp > 22 && temp < 28
		},
		result: models.Recommendation{
			Name:    "Maize 🌽",
			Details: "Maize needs consistent moisture and full sun.",
			Dos:     []string{"Irrigate at flowering", "Control weeds early"},
			Donts:   []string{"Avoid acidic soils", "Don't crowd plants"},
		},
	},
	{
		match: func(temp, _ float64, soil int, _ string) bool {
			return soil < 30 && temp > 25
		},
		result: models.Recommendation{
			Name:    "Millet 🌿",
			Details: "Millet is drought-resistant and suited for poor soils.",
			Dos:     []string{"Plant drought tolerant varieties", "Use mulch"},
			Donts:   []string{"Avoid waterlogging", "Don't over-fertilize"},
		},
	},
}

var fallback = models.Recommendation{
	Name:    "Potato 🥔",
	Details: "Potatoes prefer loose, well-draining soils.",
	Dos:     []string{"Keep soil cool and moist", "Practice crop rotation"},
	Donts:   []string{"Avoid compacted soils", "Don't let fields waterlog"},
}

// Recommend returns the crop for the first matching rule, or Potato.
func Recommend(temp, hum float64, soil int, status string) models.Recommendation {
	for _, r := range rules {
		if r.match(temp, hum, soil, status) {
			return clone(r.result)
		}
	}
	return clone(fallback)
}

// ForSnapshot is Recommend applied to a cached snapshot.
func ForSnapshot(s models.Snapshot) models.Recommendation {
	return Recommend(s.Temperature, s.Humidity, s.Soil, s.SoilStatus)
}

func clone(r models.Recommendation) models.Recommendation {
	r.Dos = append([]string(nil), r.Dos...)
	r.Donts = append([]string(nil), r.Donts...)
	return r
}
