// Package timeline buckets readings and meals into hourly and daily summaries.
package timeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
)

type Aggregator struct {
	glucose storage.GlucoseRepo
	meals   storage.MealRepo
	loc     *time.Location
	log     *logger.Logger
}

// NewAggregator builds an aggregator whose days and hours follow loc (UTC when nil).
func NewAggregator(glucose storage.GlucoseRepo, meals storage.MealRepo, loc *time.Location, log *logger.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		glucose: glucose,
		meals:   meals,
		loc:     loc,
		log:     log.With("component", "timeline"),
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysRange returns the inclusive bounds of n consecutive local days starting at the day of t.
func DaysRange(t time.Time, n int, loc *time.Location) (from, to time.Time) {
	from = StartOfDay(t, loc)
	to = from.AddDate(0, 0, n).Add(-time.Nanosecond)
	return from, to
}

// DailyTimeline returns 24 hourly buckets for the local day of date.
func (a *Aggregator) DailyTimeline(ctx context.Context, subjectID string, date time.Time) (*models.DailyTimeline, error) {
	from, to := DaysRange(date, 1, a.loc)

	readings, err := a.glucose.ReadingsBetween(ctx, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read glucose: %w", err)
	}
	meals, err := a.meals.MealsBetween(ctx, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}

	var hours [24]bucket
	for _, r := range readings {
		hours[r.Timestamp.In(a.loc).Hour()].add(r.Value)
	}

	hourlyData := make([]models.HourlyTimelineData, 24)
	for h := range hourlyData {
		hourlyData[h] = models.HourlyTimelineData{
			Hour:       h,
			AvgGlucose: hours[h].avg(),
			MinGlucose: models.Round1(hours[h].min),
			MaxGlucose: models.Round1(hours[h].max),
			Meals:      []models.TimelineMeal{},
		}
	}
	for _, m := range meals {
		h := m.Timestamp.In(a.loc).Hour()
		hourlyData[h].MealCount++
		hourlyData[h].Meals = append(hourlyData[h].Meals, models.TimelineMeal{
			Name:     m.DisplayName(),
			MealType: m.MealType,
			Calories: math.Round(m.TotalCalories),
		})
	}

	return &models.DailyTimeline{
		Date:       from.Format(models.DateLayout),
		HourlyData: hourlyData,
	}, nil
}

// WeeklyTimeline returns 7 daily buckets spanning [weekStart, weekStart+7d).
func (a *Aggregator) WeeklyTimeline(ctx context.Context, subjectID string, weekStart time.Time) (*models.WeeklyTimeline, error) {
	from, to := DaysRange(weekStart, 7, a.loc)

	readings, err := a.glucose.ReadingsBetween(ctx, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read glucose: %w", err)
	}
	meals, err := a.meals.MealsBetween(ctx, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}

	byDate := make(map[string]*bucket)
	for _, r := range readings {
		key := r.Timestamp.In(a.loc).Format(models.DateLayout)
		b, ok := byDate[key]
		if !ok {
			b = &bucket{}
			byDate[key] = b
		}
		b.add(r.Value)
	}
	mealsByDate := make(map[string]int)
	for _, m := range meals {
		mealsByDate[m.Timestamp.In(a.loc).Format(models.DateLayout)]++
	}

	dailyData := make([]models.DailyAverageData, 0, 7)
	for i := 0; i < 7; i++ {
		key := from.AddDate(0, 0, i).Format(models.DateLayout)
		b := byDate[key]
		if b == nil {
			b = &bucket{}
		}
		dailyData = append(dailyData, models.DailyAverageData{
			Date:       key,
			AvgGlucose: b.avg(),
			MinGlucose: models.Round1(b.min),
			MaxGlucose: models.Round1(b.max),
			MealCount:  mealsByDate[key],
			SpikeCount: b.high,
		})
	}

	return &models.WeeklyTimeline{
		StartDate: from.Format(models.DateLayout),
		EndDate:   to.Format(models.DateLayout),
		DailyData: dailyData,
	}, nil
}

// RangeStats aggregates the readings of [start, end].
func (a *Aggregator) RangeStats(ctx context.Context, subjectID string, start, end time.Time) (models.RangeStats, error) {
	var agg storage.GlucoseAggregate
	if ga, ok := a.glucose.(storage.GlucoseAggregator); ok {
		var err error
		if agg, err = ga.AggregateGlucose(ctx, subjectID, start, end); err != nil {
			return models.RangeStats{}, fmt.Errorf("failed to aggregate glucose: %w", err)
		}
	} else {
		readings, err := a.glucose.ReadingsBetween(ctx, subjectID, start, end)
		if err != nil {
			return models.RangeStats{}, fmt.Errorf("failed to read glucose: %w", err)
		}
		agg = AggregateReadings(readings)
	}
	return StatsFromAggregate(agg), nil
}

// MealStats groups the meals of [start, end] by type.
func (a *Aggregator) MealStats(ctx context.Context, subjectID string, start, end time.Time) (models.MealStats, error) {
	var groups []storage.MealTypeAggregate
	if ma, ok := a.meals.(storage.MealAggregator); ok {
		var err error
		if groups, err = ma.AggregateMeals(ctx, subjectID, start, end); err != nil {
			return models.MealStats{}, fmt.Errorf("failed to aggregate meals: %w", err)
		}
	} else {
		meals, err := a.meals.MealsBetween(ctx, subjectID, start, end)
		if err != nil {
			return models.MealStats{}, fmt.Errorf("failed to read meals: %w", err)
		}
		groups = GroupMeals(meals)
	}
	return MealStatsFromGroups(groups), nil
}

// AggregateReadings is the in-memory single pass behind RangeStats.
func AggregateReadings(readings []models.GlucoseReading) storage.GlucoseAggregate {
	var agg storage.GlucoseAggregate
	for i, r := range readings {
		if i == 0 || r.Value < agg.Min {
			agg.Min = r.Value
		}
		if i == 0 || r.Value > agg.Max {
			agg.Max = r.Value
		}
		agg.Sum += r.Value
		agg.Count++
		if r.High() {
			agg.High++
		}
		if r.InRange() {
			agg.InRange++
		}
	}
	return agg
}

func StatsFromAggregate(agg storage.GlucoseAggregate) models.RangeStats {
	stats := models.RangeStats{
		MinGlucose:   models.Round1(agg.Min),
		MaxGlucose:   models.Round1(agg.Max),
		ReadingCount: agg.Count,
		SpikeCount:   agg.High,
	}
	if agg.Count > 0 {
		stats.AvgGlucose = models.Round1(agg.Sum / float64(agg.Count))
		stats.TimeInRangePct = models.Round1(100 * float64(agg.InRange) / float64(agg.Count))
	}
	return stats
}

// GroupMeals is the in-memory GROUP BY meal_type behind MealStats.
func GroupMeals(meals []models.MealRecord) []storage.MealTypeAggregate {
	index := make(map[models.MealType]int)
	var groups []storage.MealTypeAggregate
	for _, m := range meals {
		i, ok := index[m.MealType]
		if !ok {
			i = len(groups)
			index[m.MealType] = i
			groups = append(groups, storage.MealTypeAggregate{MealType: m.MealType})
		}
		groups[i].Count++
		groups[i].Calories += m.TotalCalories
	}
	return groups
}

func MealStatsFromGroups(groups []storage.MealTypeAggregate) models.MealStats {
	var stats models.MealStats
	for _, g := range groups {
		stats.MealsByType.Add(g.MealType, g.Count)
		stats.TotalMeals += g.Count
		stats.TotalCalories += g.Calories
	}
	if stats.TotalMeals > 0 {
		stats.AvgCaloriesPerMeal = models.Round1(stats.TotalCalories / float64(stats.TotalMeals))
	}
	stats.TotalCalories = math.Round(stats.TotalCalories)
	return stats
}

type bucket struct {
	sum   float64
	count int
	min   float64
	max   float64
	high  int
}

func (b *bucket) add(v float64) {
	if b.count == 0 || v < b.min {
		b.min = v
	}
	if b.count == 0 || v > b.max {
		b.max = v
	}
	b.sum += v
	b.count++
	if v > models.TargetHigh {
		b.high++
	}
}

func (b *bucket) avg() float64 {
	if b.count == 0 {
		return 0
	}
	return models.Round1(b.sum / float64(b.count))
}
