package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mcp-glucose-insights/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "insights.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func reading(subject string, minutes int, value float64) models.GlucoseReading {
	return models.GlucoseReading{
		SubjectID: subject,
		Timestamp: day0.Add(time.Duration(minutes) * time.Minute),
		Value:     value,
		Source:    "cgm",
	}
}

func TestSQLiteStorage_ReadingsBetween(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	err := s.SaveReadings(ctx, []models.GlucoseReading{
		reading("alice", 20, 120),
		reading("alice", 0, 100),
		reading("alice", 10, 110),
		reading("alice", 30, 130),
		reading("bob", 10, 200),
	})
	if err != nil {
		t.Fatalf("SaveReadings() error = %v", err)
	}

	got, err := s.ReadingsBetween(ctx, "alice", day0.Add(10*time.Minute), day0.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ReadingsBetween() error = %v", err)
	}
	want := []float64{110, 120, 130}
	if len(got) != len(want) {
		t.Fatalf("ReadingsBetween() returned %d readings, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.Value != want[i] {
			t.Errorf("reading[%d].Value = %v, want %v", i, r.Value, want[i])
		}
		if r.SubjectID != "alice" {
			t.Errorf("reading[%d].SubjectID = %q, want alice", i, r.SubjectID)
		}
	}
	if !got[0].Timestamp.Equal(day0.Add(10 * time.Minute)) {
		t.Errorf("first timestamp = %v, want %v", got[0].Timestamp, day0.Add(10*time.Minute))
	}
}

func TestSQLiteStorage_SaveMeal(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	meal := &models.MealRecord{
		SubjectID:     "alice",
		ID:            "meal-1",
		Timestamp:     day0.Add(8 * time.Hour),
		MealType:      models.Breakfast,
		TotalCalories: 420,
		TotalCarbsG:   55,
		Ingredients:   []models.Ingredient{{Name: "oats"}, {Name: "banana"}, {Name: "milk"}, {Name: "honey"}},
	}
	if err := s.SaveMeal(ctx, meal); err != nil {
		t.Fatalf("SaveMeal() error = %v", err)
	}

	meals, err := s.MealsBetween(ctx, "alice", day0, day0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("MealsBetween() error = %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("MealsBetween() returned %d meals, want 1", len(meals))
	}
	if got := meals[0].DisplayName(); got != "oats, banana, milk" {
		t.Errorf("DisplayName() = %q, want %q", got, "oats, banana, milk")
	}
	if meals[0].TotalCarbsG != 55 || meals[0].MealType != models.Breakfast {
		t.Errorf("meal = %+v, want carbs 55 breakfast", meals[0])
	}

	// saving the same id again replaces the meal and its ingredients
	meal.MealType = models.Snack
	meal.Ingredients = []models.Ingredient{{Name: "apple"}}
	if err := s.SaveMeal(ctx, meal); err != nil {
		t.Fatalf("SaveMeal() second call error = %v", err)
	}
	meals, err = s.MealsBetween(ctx, "alice", day0, day0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("MealsBetween() error = %v", err)
	}
	if len(meals) != 1 || meals[0].DisplayName() != "apple" || meals[0].MealType != models.Snack {
		t.Errorf("after re-save meals = %+v, want one snack named apple", meals)
	}
}

func TestSQLiteStorage_Aggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	values := []float64{95, 120, 185, 150, 110}
	var readings []models.GlucoseReading
	for i, v := range values {
		readings = append(readings, reading("alice", i*5, v))
	}
	if err := s.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("SaveReadings() error = %v", err)
	}

	agg, err := s.AggregateGlucose(ctx, "alice", day0, day0.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateGlucose() error = %v", err)
	}
	want := GlucoseAggregate{Count: 5, Sum: 660, Min: 95, Max: 185, High: 1, InRange: 4}
	if agg != want {
		t.Errorf("AggregateGlucose() = %+v, want %+v", agg, want)
	}

	empty, err := s.AggregateGlucose(ctx, "nobody", day0, day0.Add(time.Hour))
	if err != nil {
		t.Fatalf("AggregateGlucose() error = %v", err)
	}
	if empty != (GlucoseAggregate{}) {
		t.Errorf("AggregateGlucose() for empty range = %+v, want zero", empty)
	}

	for i, mt := range []models.MealType{models.Lunch, models.Lunch, models.Dinner} {
		err := s.SaveMeal(ctx, &models.MealRecord{
			SubjectID:     "alice",
			ID:            fmt.Sprintf("m%d", i),
			Timestamp:     day0.Add(time.Duration(12+i) * time.Hour),
			MealType:      mt,
			TotalCalories: 500,
		})
		if err != nil {
			t.Fatalf("SaveMeal() error = %v", err)
		}
	}
	groups, err := s.AggregateMeals(ctx, "alice", day0, day0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("AggregateMeals() error = %v", err)
	}
	byType := make(map[models.MealType]MealTypeAggregate)
	for _, g := range groups {
		byType[g.MealType] = g
	}
	if byType[models.Lunch].Count != 2 || byType[models.Lunch].Calories != 1000 {
		t.Errorf("lunch group = %+v, want count 2 calories 1000", byType[models.Lunch])
	}
	if byType[models.Dinner].Count != 1 {
		t.Errorf("dinner group = %+v, want count 1", byType[models.Dinner])
	}
}

func TestSQLiteStorage_PutInsightReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := &models.DailyInsight{AvgGlucose: 120, TimeInRangePct: 90, SpikeCount: 0}
	second := &models.DailyInsight{AvgGlucose: 150, TimeInRangePct: 60, SpikeCount: 4}

	if err := s.PutInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind, first); err != nil {
		t.Fatalf("PutInsight() error = %v", err)
	}
	before, err := s.GetInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind)
	if err != nil || before == nil {
		t.Fatalf("GetInsight() = %v, %v", before, err)
	}

	if err := s.PutInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind, second); err != nil {
		t.Fatalf("PutInsight() error = %v", err)
	}

	n, err := s.CountInsights(ctx, "alice", "2024-03-04", models.DailySummaryKind)
	if err != nil {
		t.Fatalf("CountInsights() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountInsights() = %d, want 1", n)
	}

	after, err := s.GetInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind)
	if err != nil {
		t.Fatalf("GetInsight() error = %v", err)
	}
	if after.ID != before.ID {
		t.Errorf("ID changed from %s to %s", before.ID, after.ID)
	}
	if after.Version != PayloadVersion {
		t.Errorf("Version = %d, want %d", after.Version, PayloadVersion)
	}
	var got models.DailyInsight
	if err := after.Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.AvgGlucose != 150 || got.SpikeCount != 4 || got.TimeInRangePct != 60 {
		t.Errorf("payload = %+v, want the second write", got)
	}
}

func TestSQLiteStorage_ConcurrentPutInsight(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			insight := &models.DailyInsight{AvgGlucose: float64(100 + i)}
			if err := s.PutInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind, insight); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("PutInsight() error = %v", err)
	}

	n, err := s.CountInsights(ctx, "alice", "2024-03-04", models.DailySummaryKind)
	if err != nil {
		t.Fatalf("CountInsights() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountInsights() = %d, want 1", n)
	}
}

func TestSQLiteStorage_GetInsightMissing(t *testing.T) {
	s := newTestSQLite(t)
	got, err := s.GetInsight(context.Background(), "alice", "2024-03-04", models.DailySummaryKind)
	if err != nil {
		t.Fatalf("GetInsight() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetInsight() = %+v, want nil", got)
	}
}

func TestSQLiteStorage_PutInsightRejectsInvalid(t *testing.T) {
	s := newTestSQLite(t)
	err := s.PutInsight(context.Background(), "alice", "2024-03-04", models.DailySummaryKind,
		&models.DailyInsight{TimeInRangePct: 140})
	if !errors.Is(err, models.ErrInvalidPayload) {
		t.Errorf("PutInsight() error = %v, want ErrInvalidPayload", err)
	}
}

func TestSQLiteStorage_ListInsights(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for _, date := range []string{"2024-03-06", "2024-03-04", "2024-03-05", "2024-03-09"} {
		if err := s.PutInsight(ctx, "alice", date, models.DailySummaryKind, &models.DailyInsight{}); err != nil {
			t.Fatalf("PutInsight(%s) error = %v", date, err)
		}
	}
	if err := s.PutInsight(ctx, "alice", "2024-03-04", models.WeeklySummaryKind, &models.WeeklySummary{}); err != nil {
		t.Fatalf("PutInsight() error = %v", err)
	}

	rows, err := s.ListInsights(ctx, "alice", "2024-03-04", "2024-03-06", models.DailySummaryKind)
	if err != nil {
		t.Fatalf("ListInsights() error = %v", err)
	}
	want := []string{"2024-03-04", "2024-03-05", "2024-03-06"}
	if len(rows) != len(want) {
		t.Fatalf("ListInsights() returned %d rows, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if row.Date != want[i] || row.Kind != models.DailySummaryKind {
			t.Errorf("row[%d] = %s/%s, want %s/%s", i, row.Date, row.Kind, want[i], models.DailySummaryKind)
		}
	}
}

func TestSQLiteStorage_FutureVersionRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO insights (id, subject_id, date, kind, version, payload, created_at, updated_at)
        VALUES ('x', 'alice', '2024-03-04', 'daily_summary', 9, '{"version":9,"kind":"daily_summary","data":{}}', 0, 0)
    `)
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}

	_, err = s.GetInsight(ctx, "alice", "2024-03-04", models.DailySummaryKind)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("GetInsight() error = %v, want ErrUnsupportedVersion", err)
	}
}
