// Package model defines the core packing list data types.
package model

import "time"

// Fragility is a coarse breakability level for a packed item.
type Fragility string

const (
	FragilityLow    Fragility = "Low"
	FragilityMedium Fragility = "Medium"
	FragilityHigh   Fragility = "High"
)

// ValidFragility are the recognized fragility levels. Matching is exact.
var ValidFragility = map[Fragility]bool{
	FragilityLow:    true,
	FragilityMedium: true,
	FragilityHigh:   true,
}

// NormalizeFragility returns f if it is a recognized level and Low otherwise.
func NormalizeFragility(f string) Fragility {
	if ValidFragility[Fragility(f)] {
		return Fragility(f)
	}
	return FragilityLow
}

// PackingItem is an entry on the packing list.
type PackingItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Fragility Fragility `json:"fragility"`
	Timestamp time.Time `json:"timestamp"`
}

// DetectedItem is one object reported by the classifier for a single frame.
// Fragility is kept as the raw string the model returned.
type DetectedItem struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Fragility string `json:"fragility"`
}
