// internal/models/meal.go
package models

import (
	"strings"
	"time"
)

type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
	Snack     MealType = "snack"
)

// MealTypes lists every meal type in display order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner, Snack}

func (m MealType) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner, Snack:
		return true
	}
	return false
}

type Ingredient struct {
	Name string `json:"name"`
}

// MealRecord is an analysed meal as handed over by the food-capture side.
type MealRecord struct {
	SubjectID     string       `json:"subjectId"`
	ID            string       `json:"id"`
	Timestamp     time.Time    `json:"timestamp"`
	MealType      MealType     `json:"mealType"`
	TotalCalories float64      `json:"totalCalories"`
	TotalCarbsG   float64      `json:"totalCarbsG"`
	TotalProteinG float64      `json:"totalProteinG"`
	TotalFatG     float64      `json:"totalFatG"`
	TotalFiberG   float64      `json:"totalFiberG"`
	Ingredients   []Ingredient `json:"ingredients"`
}

const UnnamedMeal = "Unnamed meal"

// DisplayName joins at most the first three ingredient names.
func (m *MealRecord) DisplayName() string {
	n := len(m.Ingredients)
	if n == 0 {
		return UnnamedMeal
	}
	if n > 3 {
		n = 3
	}
	names := make([]string, 0, n)
	for _, ing := range m.Ingredients[:n] {
		names = append(names, ing.Name)
	}
	return strings.Join(names, ", ")
}

type ConfidenceLevel string

const (
	HighConfidence   ConfidenceLevel = "high"
	MediumConfidence ConfidenceLevel = "medium"
	LowConfidence    ConfidenceLevel = "low"
)

// Reliable reports whether a correlation at this level may be ranked.
func (c ConfidenceLevel) Reliable() bool {
	return c == HighConfidence || c == MediumConfidence
}

// MealCounts holds per-type meal totals.
type MealCounts struct {
	Breakfast int `json:"breakfast"`
	Lunch     int `json:"lunch"`
	Dinner    int `json:"dinner"`
	Snack     int `json:"snack"`
}

func (c *MealCounts) Add(t MealType, n int) {
	switch t {
	case Breakfast:
		c.Breakfast += n
	case Lunch:
		c.Lunch += n
	case Dinner:
		c.Dinner += n
	case Snack:
		c.Snack += n
	}
}

func (c MealCounts) Total() int {
	return c.Breakfast + c.Lunch + c.Dinner + c.Snack
}
