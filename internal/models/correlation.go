// internal/models/correlation.go
package models

import "time"

type GlucoseResponse struct {
	Baseline float64   `json:"baseline"` // mg/dL, mean over the 30 minutes before the meal
	Peak     float64   `json:"peak"`     // mg/dL, highest reading within 2h after
	PeakTime time.Time `json:"peakTime"`
	Change   float64   `json:"change"` // peak - baseline
	Spiked   bool      `json:"spiked"`
}

type MealCorrelation struct {
	MealID          string          `json:"mealId"`
	MealName        string          `json:"mealName"`
	MealType        MealType        `json:"mealType"`
	EatenAt         time.Time       `json:"eatenAt"`
	GlucoseResponse GlucoseResponse `json:"glucoseResponse"`
	Confidence      ConfidenceLevel `json:"confidence"`
}

// MealTypeResponse aggregates correlations of one meal type.
type MealTypeResponse struct {
	AvgChange float64 `json:"avgChange"`
	SpikeRate float64 `json:"spikeRate"`
	Count     int     `json:"count"`
}
