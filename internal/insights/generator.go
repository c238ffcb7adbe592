// Package insights generates and caches daily and weekly summaries.
package insights

import (
	"context"
	"fmt"
	"time"

	"mcp-glucose-insights/internal/correlation"
	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
	"mcp-glucose-insights/internal/timeline"
)

const (
	weeklyRankSize = 3
	daysPerWeek    = 7
)

type Generator struct {
	engine     *correlation.Engine
	aggregator *timeline.Aggregator
	cache      storage.InsightCache
	log        *logger.Logger
}

func NewGenerator(engine *correlation.Engine, aggregator *timeline.Aggregator, cache storage.InsightCache, log *logger.Logger) *Generator {
	return &Generator{
		engine:     engine,
		aggregator: aggregator,
		cache:      cache,
		log:        log.With("component", "insights"),
	}
}

func (g *Generator) dateKey(t time.Time) string {
	return timeline.StartOfDay(t, g.aggregator.Location()).Format(models.DateLayout)
}

// GenerateDaily computes the summary of the local day of date and replaces the cached row.
func (g *Generator) GenerateDaily(ctx context.Context, subjectID string, date time.Time) (*models.DailyInsight, error) {
	from, to := timeline.DaysRange(date, 1, g.aggregator.Location())

	stats, err := g.aggregator.RangeStats(ctx, subjectID, from, to)
	if err != nil {
		return nil, err
	}
	mealStats, err := g.aggregator.MealStats(ctx, subjectID, from, to)
	if err != nil {
		return nil, err
	}
	correlations, err := g.engine.CorrelateRange(ctx, subjectID, from, to)
	if err != nil {
		return nil, err
	}

	insight := &models.DailyInsight{
		AvgGlucose:      stats.AvgGlucose,
		TimeInRangePct:  stats.TimeInRangePct,
		SpikeCount:      stats.SpikeCount,
		MealCountByType: mealStats.MealsByType,
	}
	best, worst := correlation.Rank(correlations, 1)
	if len(best) > 0 {
		insight.BestMeal = summarize(best[0])
		insight.WorstMeal = summarize(worst[0])
	}

	key := from.Format(models.DateLayout)
	if err := g.cache.PutInsight(ctx, subjectID, key, models.DailySummaryKind, insight); err != nil {
		return nil, fmt.Errorf("failed to store daily insight %s: %w", key, err)
	}
	g.log.Debug("Generated daily insight", "subject", subjectID, "date", key, "correlations", len(correlations))
	return insight, nil
}

func summarize(c models.MealCorrelation) *models.MealSummary {
	return &models.MealSummary{
		Name:          c.MealName,
		GlucoseChange: c.GlucoseResponse.Change,
		MealType:      c.MealType,
	}
}

// GetDaily reads the cached daily insight. It never generates one; nil means not generated yet.
func (g *Generator) GetDaily(ctx context.Context, subjectID string, date time.Time) (*models.DailyInsightRecord, error) {
	key := g.dateKey(date)
	row, err := g.cache.GetInsight(ctx, subjectID, key, models.DailySummaryKind)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily insight %s: %w", key, err)
	}
	if row == nil {
		return nil, nil
	}
	return decodeDaily(row)
}

func decodeDaily(row *storage.CachedInsight) (*models.DailyInsightRecord, error) {
	rec := &models.DailyInsightRecord{
		Date:        row.Date,
		GeneratedAt: row.UpdatedAt,
		Disclaimer:  models.InsightsDisclaimer,
	}
	if err := row.Decode(&rec.DailyInsight); err != nil {
		return nil, fmt.Errorf("failed to decode daily insight %s: %w", row.Date, err)
	}
	return rec, nil
}

// ListDaily returns the cached daily insights of [start, end] ordered by date.
func (g *Generator) ListDaily(ctx context.Context, subjectID string, start, end time.Time) ([]models.DailyInsightRecord, error) {
	rows, err := g.cache.ListInsights(ctx, subjectID, g.dateKey(start), g.dateKey(end), models.DailySummaryKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily insights: %w", err)
	}
	out := make([]models.DailyInsightRecord, 0, len(rows))
	for i := range rows {
		rec, err := decodeDaily(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// BatchGenerate generates daily insights for each day of [start, end] in order.
// A failing day is logged and skipped; the result counts successful days only.
func (g *Generator) BatchGenerate(ctx context.Context, subjectID string, start, end time.Time) int {
	loc := g.aggregator.Location()
	last := timeline.StartOfDay(end, loc)

	count := 0
	for day := timeline.StartOfDay(start, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		if _, err := g.GenerateDaily(ctx, subjectID, day); err != nil {
			g.log.Error("Failed to generate daily insight",
				"subject", subjectID, "date", day.Format(models.DateLayout), "error", err)
			continue
		}
		count++
	}
	g.log.Info("Batch generation finished", "subject", subjectID, "generated", count)
	return count
}
