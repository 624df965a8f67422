package models

// Recommendation is a static crop suggestion.
type Recommendation struct {
	Name    string   `json:"name"`
	Details string   `json:"details"`
	Dos     []string `json:"dos"`
	Donts   []string `json:"donts"`
}
