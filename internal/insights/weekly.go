package insights

import (
	"context"
	"fmt"
	"time"

	"mcp-glucose-insights/internal/correlation"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
	"mcp-glucose-insights/internal/timeline"
)

// GenerateWeekly summarises the seven local days starting at weekStart and
// replaces the cached weekly row. Per-day figures come from cached daily
// insights where present and are computed inline otherwise.
func (g *Generator) GenerateWeekly(ctx context.Context, subjectID string, weekStart time.Time) (*models.WeeklySummary, error) {
	loc := g.aggregator.Location()
	from, to := timeline.DaysRange(weekStart, daysPerWeek, loc)

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
	best, worst := correlation.Rank(correlations, weeklyRankSize)

	summary := &models.WeeklySummary{
		WeekStart:      from.Format(models.DateLayout),
		WeekEnd:        to.Format(models.DateLayout),
		AvgGlucose:     stats.AvgGlucose,
		TimeInRangePct: stats.TimeInRangePct,
		TotalMeals:     mealStats.MealsByType.Total(),
		MealsByType:    mealStats.MealsByType,
		BestMeals:      ranked(best),
		WorstMeals:     ranked(worst),
		DailySummaries: make([]models.DaySummary, 0, daysPerWeek),
	}

	for i := 0; i < daysPerWeek; i++ {
		day := from.AddDate(0, 0, i)
		ds, err := g.daySummary(ctx, subjectID, day)
		if err != nil {
			g.log.Warn("Failed to summarise day for weekly summary",
				"subject", subjectID, "date", day.Format(models.DateLayout), "error", err)
			ds = models.DaySummary{Date: day.Format(models.DateLayout)}
		}
		summary.TotalSpikes += ds.SpikeCount
		summary.DailySummaries = append(summary.DailySummaries, ds)
	}

	if err := g.cache.PutInsight(ctx, subjectID, summary.WeekStart, models.WeeklySummaryKind, summary); err != nil {
		return nil, fmt.Errorf("failed to store weekly summary %s: %w", summary.WeekStart, err)
	}
	g.log.Info("Generated weekly summary", "subject", subjectID, "weekStart", summary.WeekStart,
		"meals", summary.TotalMeals, "spikes", summary.TotalSpikes, "timeInRange", summary.TimeInRangePct)
	return summary, nil
}

func (g *Generator) daySummary(ctx context.Context, subjectID string, day time.Time) (models.DaySummary, error) {
	key := day.Format(models.DateLayout)
	cached, err := g.GetDaily(ctx, subjectID, day)
	if err != nil {
		return models.DaySummary{}, err
	}
	if cached != nil {
		return models.DaySummary{
			Date:           key,
			AvgGlucose:     cached.AvgGlucose,
			TimeInRangePct: cached.TimeInRangePct,
			SpikeCount:     cached.SpikeCount,
			MealCount:      cached.MealCountByType.Total(),
		}, nil
	}

	from, to := timeline.DaysRange(day, 1, g.aggregator.Location())
	stats, err := g.aggregator.RangeStats(ctx, subjectID, from, to)
	if err != nil {
		return models.DaySummary{}, err
	}
	mealStats, err := g.aggregator.MealStats(ctx, subjectID, from, to)
	if err != nil {
		return models.DaySummary{}, err
	}
	return models.DaySummary{
		Date:           key,
		AvgGlucose:     stats.AvgGlucose,
		TimeInRangePct: stats.TimeInRangePct,
		SpikeCount:     stats.SpikeCount,
		MealCount:      mealStats.MealsByType.Total(),
	}, nil
}

func ranked(correlations []models.MealCorrelation) []models.RankedMeal {
	out := make([]models.RankedMeal, 0, len(correlations))
	for _, c := range correlations {
		out = append(out, models.RankedMeal{
			Name:          c.MealName,
			MealType:      c.MealType,
			GlucoseChange: c.GlucoseResponse.Change,
			EatenAt:       c.EatenAt,
		})
	}
	return out
}

// GetWeekly reads the cached weekly summary; nil when never generated.
func (g *Generator) GetWeekly(ctx context.Context, subjectID string, weekStart time.Time) (*models.WeeklySummaryRecord, error) {
	key := g.dateKey(weekStart)
	row, err := g.cache.GetInsight(ctx, subjectID, key, models.WeeklySummaryKind)
	if err != nil {
		return nil, fmt.Errorf("failed to read weekly summary %s: %w", key, err)
	}
	if row == nil {
		return nil, nil
	}
	return decodeWeekly(row)
}

func decodeWeekly(row *storage.CachedInsight) (*models.WeeklySummaryRecord, error) {
	rec := &models.WeeklySummaryRecord{
		GeneratedAt: row.UpdatedAt,
		Disclaimer:  models.InsightsDisclaimer,
	}
	if err := row.Decode(&rec.WeeklySummary); err != nil {
		return nil, fmt.Errorf("failed to decode weekly summary %s: %w", row.Date, err)
	}
	return rec, nil
}
