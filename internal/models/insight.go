// internal/models/insight.go
package models

import (
	"errors"
	"fmt"
	"time"
)

type InsightKind string

const (
	DailySummaryKind  InsightKind = "daily_summary"
	WeeklySummaryKind InsightKind = "weekly_summary"
)

// DateLayout is the calendar-date form used for cache keys and payload dates.
const DateLayout = "2006-01-02"

// InsightsDisclaimer accompanies every insight handed to a reader.
const InsightsDisclaimer = "These summaries describe patterns in your logged data. They are not a diagnosis " +
	"and do not replace advice from a clinician."

var ErrInvalidPayload = errors.New("invalid insight payload")

type MealSummary struct {
	Name          string   `json:"name"`
	GlucoseChange float64  `json:"glucoseChange"`
	MealType      MealType `json:"mealType"`
}

type DailyInsight struct {
	AvgGlucose      float64      `json:"avgGlucose"`
	TimeInRangePct  float64      `json:"timeInRangePct"`
	SpikeCount      int          `json:"spikeCount"`
	MealCountByType MealCounts   `json:"mealCountByType"`
	BestMeal        *MealSummary `json:"bestMeal"`
	WorstMeal       *MealSummary `json:"worstMeal"`
}

func (d *DailyInsight) Validate() error {
	if err := validatePct(d.TimeInRangePct); err != nil {
		return err
	}
	if d.AvgGlucose < 0 || d.SpikeCount < 0 {
		return fmt.Errorf("%w: negative glucose aggregate", ErrInvalidPayload)
	}
	return validateCounts(d.MealCountByType)
}

// DailyInsightRecord is a cached daily insight as returned to readers.
type DailyInsightRecord struct {
	DailyInsight
	Date        string    `json:"date"`
	GeneratedAt time.Time `json:"generatedAt"`
	Disclaimer  string    `json:"disclaimer"`
}

type RankedMeal struct {
	Name          string    `json:"name"`
	MealType      MealType  `json:"mealType"`
	GlucoseChange float64   `json:"glucoseChange"`
	EatenAt       time.Time `json:"eatenAt"`
}

type DaySummary struct {
	Date           string  `json:"date"`
	AvgGlucose     float64 `json:"avgGlucose"`
	TimeInRangePct float64 `json:"timeInRangePct"`
	SpikeCount     int     `json:"spikeCount"`
	MealCount      int     `json:"mealCount"`
}

type WeeklySummary struct {
	WeekStart      string       `json:"weekStart"`
	WeekEnd        string       `json:"weekEnd"`
	AvgGlucose     float64      `json:"avgGlucose"`
	TimeInRangePct float64      `json:"timeInRangePct"`
	TotalSpikes    int          `json:"totalSpikes"`
	TotalMeals     int          `json:"totalMeals"`
	MealsByType    MealCounts   `json:"mealsByType"`
	BestMeals      []RankedMeal `json:"bestMeals"`
	WorstMeals     []RankedMeal `json:"worstMeals"`
	DailySummaries []DaySummary `json:"dailySummaries"`
}

func (w *WeeklySummary) Validate() error {
	if err := validatePct(w.TimeInRangePct); err != nil {
		return err
	}
	if w.TotalSpikes < 0 || w.TotalMeals < 0 {
		return fmt.Errorf("%w: negative weekly totals", ErrInvalidPayload)
	}
	if len(w.BestMeals) > 3 || len(w.WorstMeals) > 3 {
		return fmt.Errorf("%w: more than three ranked meals", ErrInvalidPayload)
	}
	for _, d := range w.DailySummaries {
		if err := validatePct(d.TimeInRangePct); err != nil {
			return fmt.Errorf("day %s: %w", d.Date, err)
		}
	}
	return validateCounts(w.MealsByType)
}

type WeeklySummaryRecord struct {
	WeeklySummary
	GeneratedAt time.Time `json:"generatedAt"`
	Disclaimer  string    `json:"disclaimer"`
}

func validatePct(p float64) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("%w: percentage %.1f outside 0-100", ErrInvalidPayload, p)
	}
	return nil
}

func validateCounts(c MealCounts) error {
	if c.Breakfast < 0 || c.Lunch < 0 || c.Dinner < 0 || c.Snack < 0 {
		return fmt.Errorf("%w: negative meal count", ErrInvalidPayload)
	}
	return nil
}
