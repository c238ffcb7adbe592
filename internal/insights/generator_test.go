package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"mcp-glucose-insights/internal/correlation"
	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
	"mcp-glucose-insights/internal/timeline"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func reading(offset time.Duration, value float64) models.GlucoseReading {
	return models.GlucoseReading{SubjectID: "alice", Timestamp: day0.Add(offset), Value: value, Source: "cgm"}
}

func meal(id string, offset time.Duration, mt models.MealType, names ...string) models.MealRecord {
	m := models.MealRecord{SubjectID: "alice", ID: id, Timestamp: day0.Add(offset), MealType: mt, TotalCalories: 500}
	for _, n := range names {
		m.Ingredients = append(m.Ingredients, models.Ingredient{Name: n})
	}
	return m
}

// addMealResponse stores a meal plus readings giving it a medium-confidence response of change.
func addMealResponse(store *storage.MemoryStorage, m models.MealRecord, change float64) {
	store.AddMeals(m)
	offset := m.Timestamp.Sub(day0)
	store.AddReadings(
		reading(offset-20*time.Minute, 100),
		reading(offset-10*time.Minute, 100),
		reading(offset+30*time.Minute, 100+change),
		reading(offset+60*time.Minute, 100),
	)
}

// failingGlucose fails every single-day query that covers failAt.
type failingGlucose struct {
	storage.GlucoseRepo
	failAt time.Time
}

var errInjected = errors.New("injected read failure")

func (f *failingGlucose) ReadingsBetween(ctx context.Context, subjectID string, from, to time.Time) ([]models.GlucoseReading, error) {
	if to.Sub(from) < 25*time.Hour && !f.failAt.Before(from) && !f.failAt.After(to) {
		return nil, errInjected
	}
	return f.GlucoseRepo.ReadingsBetween(ctx, subjectID, from, to)
}

func newGenerator(glucose storage.GlucoseRepo, store *storage.MemoryStorage) *Generator {
	log := logger.Nop()
	engine := correlation.NewEngine(glucose, store, log, 4)
	agg := timeline.NewAggregator(glucose, store, time.UTC, log)
	return NewGenerator(engine, agg, store, log)
}

func TestGenerateDaily(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	addMealResponse(store, meal("b", 8*time.Hour, models.Breakfast, "oats"), 30)
	addMealResponse(store, meal("l", 12*time.Hour, models.Lunch, "burger", "fries"), 90)
	addMealResponse(store, meal("s", 16*time.Hour, models.Snack, "apple"), 10)
	g := newGenerator(store, store)

	insight, err := g.GenerateDaily(ctx, "alice", day0.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("GenerateDaily() error = %v", err)
	}
	if insight.BestMeal == nil || insight.BestMeal.Name != "apple" || insight.BestMeal.GlucoseChange != 10 {
		t.Errorf("BestMeal = %+v, want apple +10", insight.BestMeal)
	}
	if insight.WorstMeal == nil || insight.WorstMeal.Name != "burger, fries" || insight.WorstMeal.MealType != models.Lunch {
		t.Errorf("WorstMeal = %+v, want burger, fries (lunch)", insight.WorstMeal)
	}
	if insight.SpikeCount != 1 {
		t.Errorf("SpikeCount = %d, want 1", insight.SpikeCount)
	}
	if want := (models.MealCounts{Breakfast: 1, Lunch: 1, Snack: 1}); insight.MealCountByType != want {
		t.Errorf("MealCountByType = %+v, want %+v", insight.MealCountByType, want)
	}

	rec, err := g.GetDaily(ctx, "alice", day0)
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if rec == nil {
		t.Fatal("GetDaily() = nil after GenerateDaily")
	}
	if rec.Date != "2024-03-04" || rec.Disclaimer != models.InsightsDisclaimer || rec.GeneratedAt.IsZero() {
		t.Errorf("record = %+v, want date, disclaimer and generatedAt set", rec)
	}
	if rec.AvgGlucose != insight.AvgGlucose || rec.SpikeCount != insight.SpikeCount {
		t.Errorf("cached = %+v, generated = %+v", rec.DailyInsight, *insight)
	}
}

func TestGenerateDaily_NoData(t *testing.T) {
	store := storage.NewMemoryStorage()
	g := newGenerator(store, store)

	insight, err := g.GenerateDaily(context.Background(), "alice", day0)
	if err != nil {
		t.Fatalf("GenerateDaily() error = %v", err)
	}
	if insight.AvgGlucose != 0 || insight.BestMeal != nil || insight.WorstMeal != nil {
		t.Errorf("insight = %+v, want zero averages and no meals", insight)
	}
	if store.InsightCount() != 1 {
		t.Errorf("InsightCount() = %d, want 1", store.InsightCount())
	}
}

func TestGenerateDaily_RegenerateReplaces(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	store.AddReadings(reading(9*time.Hour, 100), reading(10*time.Hour, 110))
	g := newGenerator(store, store)

	if _, err := g.GenerateDaily(ctx, "alice", day0); err != nil {
		t.Fatalf("GenerateDaily() error = %v", err)
	}

	store.Reset("alice")
	store.AddReadings(reading(9*time.Hour, 200), reading(10*time.Hour, 220))
	if _, err := g.GenerateDaily(ctx, "alice", day0); err != nil {
		t.Fatalf("GenerateDaily() second call error = %v", err)
	}

	if store.InsightCount() != 1 {
		t.Errorf("InsightCount() = %d, want 1", store.InsightCount())
	}
	rec, err := g.GetDaily(ctx, "alice", day0)
	if err != nil || rec == nil {
		t.Fatalf("GetDaily() = %v, %v", rec, err)
	}
	if rec.AvgGlucose != 210 || rec.SpikeCount != 2 {
		t.Errorf("cached = %+v, want the second payload (avg 210, 2 spikes)", rec.DailyInsight)
	}
}

func TestGetDaily_NotGenerated(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.AddReadings(reading(9*time.Hour, 100))
	g := newGenerator(store, store)

	rec, err := g.GetDaily(context.Background(), "alice", day0)
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if rec != nil {
		t.Errorf("GetDaily() = %+v, want nil", rec)
	}
	if store.InsightCount() != 0 {
		t.Errorf("GetDaily generated %d rows, want 0", store.InsightCount())
	}
}

func TestBatchGenerate_SkipsFailingDay(t *testing.T) {
	store := storage.NewMemoryStorage()
	for d := 0; d < 3; d++ {
		store.AddReadings(reading(time.Duration(d*24+9)*time.Hour, 120))
	}
	glucose := &failingGlucose{GlucoseRepo: store, failAt: day0.Add(36 * time.Hour)}
	g := newGenerator(glucose, store)

	got := g.BatchGenerate(context.Background(), "alice", day0, day0.Add(50*time.Hour))
	if got != 2 {
		t.Errorf("BatchGenerate() = %d, want 2", got)
	}

	recs, err := g.ListDaily(context.Background(), "alice", day0, day0.Add(50*time.Hour))
	if err != nil {
		t.Fatalf("ListDaily() error = %v", err)
	}
	var dates []string
	for _, r := range recs {
		dates = append(dates, r.Date)
	}
	if len(dates) != 2 || dates[0] != "2024-03-04" || dates[1] != "2024-03-06" {
		t.Errorf("cached dates = %v, want [2024-03-04 2024-03-06]", dates)
	}
}

func TestBatchGenerate_SingleDay(t *testing.T) {
	store := storage.NewMemoryStorage()
	g := newGenerator(store, store)
	if got := g.BatchGenerate(context.Background(), "alice", day0.Add(3*time.Hour), day0.Add(20*time.Hour)); got != 1 {
		t.Errorf("BatchGenerate() = %d, want 1", got)
	}
}
