// internal/models/timeline.go
package models

type TimelineMeal struct {
	Name     string   `json:"name"`
	MealType MealType `json:"mealType"`
	Calories float64  `json:"calories"`
}

type HourlyTimelineData struct {
	Hour       int            `json:"hour"`
	AvgGlucose float64        `json:"avgGlucose"`
	MinGlucose float64        `json:"minGlucose"`
	MaxGlucose float64        `json:"maxGlucose"`
	MealCount  int            `json:"mealCount"`
	Meals      []TimelineMeal `json:"meals"`
}

type DailyTimeline struct {
	Date       string               `json:"date"` // YYYY-MM-DD
	HourlyData []HourlyTimelineData `json:"hourlyData"`
}

type DailyAverageData struct {
	Date       string  `json:"date"`
	AvgGlucose float64 `json:"avgGlucose"`
	MinGlucose float64 `json:"minGlucose"`
	MaxGlucose float64 `json:"maxGlucose"`
	MealCount  int     `json:"mealCount"`
	SpikeCount int     `json:"spikeCount"`
}

type WeeklyTimeline struct {
	StartDate string             `json:"startDate"`
	EndDate   string             `json:"endDate"`
	DailyData []DailyAverageData `json:"dailyData"`
}

// RangeStats summarises the readings of a time range.
type RangeStats struct {
	AvgGlucose     float64 `json:"avgGlucose"`
	MinGlucose     float64 `json:"minGlucose"`
	MaxGlucose     float64 `json:"maxGlucose"`
	ReadingCount   int     `json:"readingCount"`
	SpikeCount     int     `json:"spikeCount"`
	TimeInRangePct float64 `json:"timeInRangePct"`
}

// MealStats summarises the meals of a time range.
type MealStats struct {
	TotalMeals         int        `json:"totalMeals"`
	MealsByType        MealCounts `json:"mealsByType"`
	TotalCalories      float64    `json:"totalCalories"`
	AvgCaloriesPerMeal float64    `json:"avgCaloriesPerMeal"`
}
