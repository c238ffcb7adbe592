package timeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func reading(offset time.Duration, value float64) models.GlucoseReading {
	return models.GlucoseReading{SubjectID: "alice", Timestamp: day.Add(offset), Value: value, Source: "cgm"}
}

func meal(id string, offset time.Duration, mt models.MealType, calories float64, names ...string) models.MealRecord {
	m := models.MealRecord{SubjectID: "alice", ID: id, Timestamp: day.Add(offset), MealType: mt, TotalCalories: calories}
	for _, n := range names {
		m.Ingredients = append(m.Ingredients, models.Ingredient{Name: n})
	}
	return m
}

func fiveReadings() []models.GlucoseReading {
	var out []models.GlucoseReading
	for i, v := range []float64{95, 120, 185, 150, 110} {
		out = append(out, reading(time.Duration(8*60+i*5)*time.Minute, v))
	}
	return out
}

func TestStartOfDayAndDaysRange(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC) // 22:00 on the 4th in UTC-5

	start := StartOfDay(ts, loc)
	if got := start.Format(models.DateLayout); got != "2024-03-04" {
		t.Errorf("StartOfDay() date = %s, want 2024-03-04", got)
	}

	from, to := DaysRange(ts, 7, loc)
	if !from.Equal(start) {
		t.Errorf("from = %v, want %v", from, start)
	}
	if want := start.AddDate(0, 0, 7).Add(-time.Nanosecond); !to.Equal(want) {
		t.Errorf("to = %v, want %v", to, want)
	}
}

func TestRangeStats(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddReadings(fiveReadings()...)
	a := NewAggregator(store, store, nil, logger.Nop())

	from, to := DaysRange(day, 1, time.UTC)
	stats, err := a.RangeStats(context.Background(), "alice", from, to)
	if err != nil {
		t.Fatalf("RangeStats() error = %v", err)
	}
	want := models.RangeStats{AvgGlucose: 132, MinGlucose: 95, MaxGlucose: 185, ReadingCount: 5, SpikeCount: 1, TimeInRangePct: 80}
	if stats != want {
		t.Errorf("RangeStats() = %+v, want %+v", stats, want)
	}
}

func TestRangeStats_Empty(t *testing.T) {
	store := storage.NewMemoryStorage()
	a := NewAggregator(store, store, nil, logger.Nop())
	stats, err := a.RangeStats(context.Background(), "alice", day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("RangeStats() error = %v", err)
	}
	if stats != (models.RangeStats{}) {
		t.Errorf("RangeStats() = %+v, want zero", stats)
	}
}

// The SQL aggregate path and the in-memory path must agree on the same data.
func TestAggregatePathsAgree(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "agg.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer db.Close()

	var readings []models.GlucoseReading
	for i := 0; i < 288; i++ {
		readings = append(readings, reading(time.Duration(i*5)*time.Minute, 60+float64((i*37)%160)))
	}
	mem.AddReadings(readings...)
	if err := db.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("SaveReadings() error = %v", err)
	}
	meals := []models.MealRecord{
		meal("b", 8*time.Hour, models.Breakfast, 350.4),
		meal("l", 12*time.Hour, models.Lunch, 640),
		meal("s", 15*time.Hour, models.Snack, 120.2),
		meal("d", 19*time.Hour, models.Dinner, 810),
		meal("s2", 21*time.Hour, models.Snack, 90),
	}
	mem.AddMeals(meals...)
	for i := range meals {
		if err := db.SaveMeal(ctx, &meals[i]); err != nil {
			t.Fatalf("SaveMeal() error = %v", err)
		}
	}

	memAgg := NewAggregator(mem, mem, nil, logger.Nop())
	sqlAgg := NewAggregator(db, db, nil, logger.Nop())
	from, to := DaysRange(day, 1, time.UTC)

	memStats, err := memAgg.RangeStats(ctx, "alice", from, to)
	if err != nil {
		t.Fatalf("memory RangeStats() error = %v", err)
	}
	sqlStats, err := sqlAgg.RangeStats(ctx, "alice", from, to)
	if err != nil {
		t.Fatalf("sqlite RangeStats() error = %v", err)
	}
	if memStats != sqlStats {
		t.Errorf("RangeStats memory = %+v, sqlite = %+v", memStats, sqlStats)
	}

	memMeals, err := memAgg.MealStats(ctx, "alice", from, to)
	if err != nil {
		t.Fatalf("memory MealStats() error = %v", err)
	}
	sqlMeals, err := sqlAgg.MealStats(ctx, "alice", from, to)
	if err != nil {
		t.Fatalf("sqlite MealStats() error = %v", err)
	}
	if memMeals != sqlMeals {
		t.Errorf("MealStats memory = %+v, sqlite = %+v", memMeals, sqlMeals)
	}
}

func TestMealStats(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddMeals(
		meal("b", 8*time.Hour, models.Breakfast, 300),
		meal("l", 12*time.Hour, models.Lunch, 700),
		meal("s", 15*time.Hour, models.Snack, 150),
	)
	a := NewAggregator(store, store, nil, logger.Nop())
	from, to := DaysRange(day, 1, time.UTC)

	stats, err := a.MealStats(context.Background(), "alice", from, to)
	if err != nil {
		t.Fatalf("MealStats() error = %v", err)
	}
	if stats.TotalMeals != 3 || stats.TotalCalories != 1150 || stats.AvgCaloriesPerMeal != 383.3 {
		t.Errorf("MealStats() = %+v, want 3 meals 1150 kcal avg 383.3", stats)
	}
	if want := (models.MealCounts{Breakfast: 1, Lunch: 1, Snack: 1}); stats.MealsByType != want {
		t.Errorf("MealsByType = %+v, want %+v", stats.MealsByType, want)
	}

	empty, err := a.MealStats(context.Background(), "bob", from, to)
	if err != nil {
		t.Fatalf("MealStats() error = %v", err)
	}
	if empty.AvgCaloriesPerMeal != 0 || empty.TotalMeals != 0 {
		t.Errorf("MealStats() for no meals = %+v, want zero", empty)
	}
}

func TestDailyTimeline(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddReadings(fiveReadings()...)
	store.AddReadings(reading(23*time.Hour+55*time.Minute, 101), reading(24*time.Hour, 300))
	store.AddMeals(
		meal("b", 8*time.Hour+10*time.Minute, models.Breakfast, 420.4, "oats", "berries"),
		meal("x", 8*time.Hour+40*time.Minute, models.Snack, 80),
	)
	a := NewAggregator(store, store, nil, logger.Nop())

	tl, err := a.DailyTimeline(context.Background(), "alice", day.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("DailyTimeline() error = %v", err)
	}
	if tl.Date != "2024-03-04" {
		t.Errorf("Date = %s, want 2024-03-04", tl.Date)
	}
	if len(tl.HourlyData) != 24 {
		t.Fatalf("len(HourlyData) = %d, want 24", len(tl.HourlyData))
	}
	for h, bucket := range tl.HourlyData {
		if bucket.Hour != h {
			t.Errorf("HourlyData[%d].Hour = %d", h, bucket.Hour)
		}
		if bucket.Meals == nil {
			t.Errorf("HourlyData[%d].Meals = nil, want empty slice", h)
		}
	}

	eight := tl.HourlyData[8]
	if eight.AvgGlucose != 132 || eight.MinGlucose != 95 || eight.MaxGlucose != 185 {
		t.Errorf("hour 8 = %+v, want avg 132 min 95 max 185", eight)
	}
	if eight.MealCount != 2 || eight.Meals[0].Name != "oats, berries" || eight.Meals[0].Calories != 420 {
		t.Errorf("hour 8 meals = %+v, want 2 meals starting with oats, berries 420 kcal", eight.Meals)
	}
	if eight.Meals[1].Name != models.UnnamedMeal {
		t.Errorf("unnamed meal = %q, want %q", eight.Meals[1].Name, models.UnnamedMeal)
	}
	if last := tl.HourlyData[23]; last.AvgGlucose != 101 {
		t.Errorf("hour 23 avg = %v, want 101 (next-day reading excluded)", last.AvgGlucose)
	}
	if empty := tl.HourlyData[3]; empty.AvgGlucose != 0 || empty.MealCount != 0 {
		t.Errorf("hour 3 = %+v, want empty bucket", empty)
	}
}

func TestDailyTimeline_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	store := storage.NewMemoryStorage()
	// 23:30 UTC on the 3rd is 01:30 local on the 4th
	store.AddReadings(reading(-30*time.Minute, 140))
	a := NewAggregator(store, store, loc, logger.Nop())

	tl, err := a.DailyTimeline(context.Background(), "alice", time.Date(2024, 3, 4, 12, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("DailyTimeline() error = %v", err)
	}
	if tl.HourlyData[1].AvgGlucose != 140 {
		t.Errorf("local hour 1 avg = %v, want 140", tl.HourlyData[1].AvgGlucose)
	}
}

func TestWeeklyTimeline(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddReadings(
		reading(2*time.Hour, 100), reading(3*time.Hour, 200),
		reading(50*time.Hour, 150),
		reading(7*24*time.Hour, 999),
	)
	store.AddMeals(meal("m", 49*time.Hour, models.Dinner, 500))
	a := NewAggregator(store, store, nil, logger.Nop())

	tl, err := a.WeeklyTimeline(context.Background(), "alice", day)
	if err != nil {
		t.Fatalf("WeeklyTimeline() error = %v", err)
	}
	if tl.StartDate != "2024-03-04" || tl.EndDate != "2024-03-10" {
		t.Errorf("range = %s..%s, want 2024-03-04..2024-03-10", tl.StartDate, tl.EndDate)
	}
	if len(tl.DailyData) != 7 {
		t.Fatalf("len(DailyData) = %d, want 7", len(tl.DailyData))
	}
	for i, d := range tl.DailyData {
		if want := day.AddDate(0, 0, i).Format(models.DateLayout); d.Date != want {
			t.Errorf("DailyData[%d].Date = %s, want %s", i, d.Date, want)
		}
	}
	first := tl.DailyData[0]
	if first.AvgGlucose != 150 || first.SpikeCount != 1 || first.MinGlucose != 100 || first.MaxGlucose != 200 {
		t.Errorf("day 0 = %+v, want avg 150 spikes 1 min 100 max 200", first)
	}
	third := tl.DailyData[2]
	if third.AvgGlucose != 150 || third.MealCount != 1 {
		t.Errorf("day 2 = %+v, want avg 150 and one meal", third)
	}
	if last := tl.DailyData[6]; last.AvgGlucose != 0 {
		t.Errorf("day 6 avg = %v, want 0", last.AvgGlucose)
	}
}

func TestAggregatorLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	store := storage.NewMemoryStorage()
	var readings []models.GlucoseReading
	for i := 0; i < 90*288; i++ {
		readings = append(readings, reading(time.Duration(i*5)*time.Minute, 80+float64(i%120)))
	}
	store.AddReadings(readings...)
	for d := 0; d < 90; d++ {
		for j, mt := range models.MealTypes {
			store.AddMeals(meal(fmt.Sprintf("m-%d-%d", d, j), time.Duration(d*24+7+j*4)*time.Hour, mt, 400))
		}
	}
	a := NewAggregator(store, store, nil, logger.Nop())
	ctx := context.Background()

	start := time.Now()
	from, to := DaysRange(day, 90, time.UTC)
	if _, err := a.RangeStats(ctx, "alice", from, to); err != nil {
		t.Fatalf("RangeStats() error = %v", err)
	}
	if _, err := a.MealStats(ctx, "alice", from, to); err != nil {
		t.Fatalf("MealStats() error = %v", err)
	}
	for w := 0; w < 12; w++ {
		if _, err := a.WeeklyTimeline(ctx, "alice", day.AddDate(0, 0, 7*w)); err != nil {
			t.Fatalf("WeeklyTimeline() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("aggregation over 90 days took %v, want under 2s", elapsed)
	}
}
