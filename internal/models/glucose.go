// internal/models/glucose.go
package models

import (
	"math"
	"time"
)

// Glucose thresholds in mg/dL.
const (
	TargetLow     = 70.0
	TargetHigh    = 180.0
	SpikeAbsolute = 180.0
	SpikeRelative = 50.0
)

// GlucoseReading is a single stored glucose value. Readings are append-only.
type GlucoseReading struct {
	SubjectID string    `json:"subjectId"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"` // mg/dL
	Source    string    `json:"source"`
}

// InRange reports whether the value lies within [70,180] mg/dL.
func (g GlucoseReading) InRange() bool {
	return g.Value >= TargetLow && g.Value <= TargetHigh
}

// High reports whether the value exceeds 180 mg/dL.
func (g GlucoseReading) High() bool {
	return g.Value > TargetHigh
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
