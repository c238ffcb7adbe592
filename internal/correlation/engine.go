// Package correlation links meals to the glucose response that follows them.
package correlation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
)

const (
	// BaselineWindow is the span before a meal averaged into the baseline.
	BaselineWindow = 30 * time.Minute
	// PeakWindow is the span after a meal searched for the peak.
	PeakWindow = 120 * time.Minute

	// FallbackBaseline (mg/dL) stands in for a missing baseline.
	FallbackBaseline = 100.0

	highConfidenceReadings   = 10
	mediumConfidenceReadings = 4

	DefaultWorkers = 8
)

type Engine struct {
	glucose storage.GlucoseRepo
	meals   storage.MealRepo
	log     *logger.Logger
	workers int
}

func NewEngine(glucose storage.GlucoseRepo, meals storage.MealRepo, log *logger.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		glucose: glucose,
		meals:   meals,
		log:     log.With("component", "correlation"),
		workers: workers,
	}
}

// Correlate computes the glucose response to a single meal. It returns nil
// without error when no readings surround the meal.
func (e *Engine) Correlate(ctx context.Context, subjectID string, meal models.MealRecord) (*models.MealCorrelation, error) {
	readings, err := e.glucose.ReadingsBetween(ctx, subjectID, meal.Timestamp.Add(-BaselineWindow), meal.Timestamp.Add(PeakWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to read glucose for meal %s: %w", meal.ID, err)
	}
	return Evaluate(meal, readings), nil
}

// CorrelateRange correlates every meal in [start, end], newest first. Meals
// without surrounding readings are dropped.
func (e *Engine) CorrelateRange(ctx context.Context, subjectID string, start, end time.Time) ([]models.MealCorrelation, error) {
	meals, err := e.meals.MealsBetween(ctx, subjectID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read meals: %w", err)
	}
	if len(meals) == 0 {
		return []models.MealCorrelation{}, nil
	}
	sort.SliceStable(meals, func(i, j int) bool { return meals[i].Timestamp.After(meals[j].Timestamp) })

	readings, err := e.glucose.ReadingsBetween(ctx, subjectID, start.Add(-BaselineWindow), end.Add(PeakWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to read glucose: %w", err)
	}

	results := make([]*models.MealCorrelation, len(meals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range meals {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Evaluate(meals[i], windowOf(readings, meals[i].Timestamp))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.MealCorrelation, 0, len(results))
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	e.log.Debug("Correlated meals", "subject", subjectID, "meals", len(meals), "correlated", len(out))
	return out, nil
}

// windowOf returns the sub-slice of ascending readings inside [t-30m, t+120m].
func windowOf(readings []models.GlucoseReading, t time.Time) []models.GlucoseReading {
	from := t.Add(-BaselineWindow)
	to := t.Add(PeakWindow)
	lo := sort.Search(len(readings), func(i int) bool { return !readings[i].Timestamp.Before(from) })
	hi := sort.Search(len(readings), func(i int) bool { return readings[i].Timestamp.After(to) })
	return readings[lo:hi]
}

// Evaluate derives the correlation of meal from readings ordered by timestamp.
// Readings outside the meal window are ignored.
func Evaluate(meal models.MealRecord, readings []models.GlucoseReading) *models.MealCorrelation {
	t := meal.Timestamp
	baselineStart := t.Add(-BaselineWindow)
	peakEnd := t.Add(PeakWindow)

	var (
		baselineSum   float64
		baselineCount int
		peak          float64
		peakTime      time.Time
		hasPeak       bool
		windowCount   int
	)
	for _, r := range readings {
		ts := r.Timestamp
		if ts.Before(baselineStart) || ts.After(peakEnd) {
			continue
		}
		windowCount++
		switch {
		case ts.Before(t):
			baselineSum += r.Value
			baselineCount++
		case ts.After(t):
			// strict comparison keeps the earliest of equal maxima
			if !hasPeak || r.Value > peak {
				peak, peakTime, hasPeak = r.Value, ts, true
			}
		}
	}

	hasBaseline := baselineCount > 0
	if !hasBaseline && !hasPeak {
		return nil
	}

	baseline := FallbackBaseline
	if hasBaseline {
		baseline = baselineSum / float64(baselineCount)
	}
	if !hasPeak {
		peak = baseline
		peakTime = t
	}

	change := peak - baseline
	confidence := models.LowConfidence
	if hasBaseline && hasPeak {
		confidence = confidenceFor(windowCount)
	}

	return &models.MealCorrelation{
		MealID:   meal.ID,
		MealName: meal.DisplayName(),
		MealType: meal.MealType,
		EatenAt:  t,
		GlucoseResponse: models.GlucoseResponse{
			Baseline: models.Round1(baseline),
			Peak:     models.Round1(peak),
			PeakTime: peakTime,
			Change:   models.Round1(change),
			Spiked:   peak > models.SpikeAbsolute || change > models.SpikeRelative,
		},
		Confidence: confidence,
	}
}

func confidenceFor(readingCount int) models.ConfidenceLevel {
	switch {
	case readingCount >= highConfidenceReadings:
		return models.HighConfidence
	case readingCount >= mediumConfidenceReadings:
		return models.MediumConfidence
	default:
		return models.LowConfidence
	}
}
