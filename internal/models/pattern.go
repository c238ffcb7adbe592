// internal/models/pattern.go
package models

type PatternType string

const (
	InsufficientData PatternType = "insufficient_data"
	HighGlucoseTrend PatternType = "high_glucose_trend"
	LowTimeInRange   PatternType = "low_time_in_range"
	FrequentSpikes   PatternType = "frequent_spikes"
	ImprovingTrend   PatternType = "improving_trend"
	ConsistentMeals  PatternType = "consistent_meals"
)

type Pattern struct {
	Type        PatternType     `json:"type"`
	Description string          `json:"description"`
	Confidence  ConfidenceLevel `json:"confidence"`
}
