// Package patterns derives multi-day trend statements from cached daily insights.
package patterns

import (
	"context"
	"fmt"
	"time"

	"mcp-glucose-insights/internal/logger"
	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/storage"
	"mcp-glucose-insights/internal/timeline"
)

const (
	MinDays = 7

	highGlucoseShare    = 0.5
	lowTimeInRangePct   = 50.0
	frequentSpikesDaily = 3.0
	trendDays           = 3
	improvementMgDL     = 10.0
	minMealsPerDay      = 3.0
	maxMealsPerDay      = 5.0
)

type Detector struct {
	cache storage.InsightCache
	loc   *time.Location
	log   *logger.Logger
}

func NewDetector(cache storage.InsightCache, loc *time.Location, log *logger.Logger) *Detector {
	if loc == nil {
		loc = time.UTC
	}
	return &Detector{cache: cache, loc: loc, log: log.With("component", "patterns")}
}

// Detect loads the cached daily insights of [start, end] and evaluates every pattern rule.
func (d *Detector) Detect(ctx context.Context, subjectID string, start, end time.Time) ([]models.Pattern, error) {
	from := timeline.StartOfDay(start, d.loc).Format(models.DateLayout)
	to := timeline.StartOfDay(end, d.loc).Format(models.DateLayout)

	rows, err := d.cache.ListInsights(ctx, subjectID, from, to, models.DailySummaryKind)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily insights: %w", err)
	}

	days := make([]models.DailyInsight, 0, len(rows))
	for i := range rows {
		var day models.DailyInsight
		if err := rows[i].Decode(&day); err != nil {
			return nil, fmt.Errorf("failed to decode daily insight %s: %w", rows[i].Date, err)
		}
		days = append(days, day)
	}

	patterns := Analyze(days)
	d.log.Debug("Detected patterns", "subject", subjectID, "days", len(days), "patterns", len(patterns))
	return patterns, nil
}

// Analyze evaluates the pattern rules over days ordered by date ascending.
func Analyze(days []models.DailyInsight) []models.Pattern {
	n := len(days)
	if n < MinDays {
		return []models.Pattern{{
			Type:        models.InsufficientData,
			Description: fmt.Sprintf("At least %d days of daily summaries are needed to look for patterns; %d found.", MinDays, n),
			Confidence:  models.LowConfidence,
		}}
	}

	patterns := []models.Pattern{}
	total := float64(n)

	highDays := 0
	var tirSum, spikeSum, mealSum float64
	for _, day := range days {
		if day.AvgGlucose > models.TargetHigh {
			highDays++
		}
		tirSum += day.TimeInRangePct
		spikeSum += float64(day.SpikeCount)
		mealSum += float64(day.MealCountByType.Total())
	}

	if float64(highDays)/total > highGlucoseShare {
		patterns = append(patterns, models.Pattern{
			Type: models.HighGlucoseTrend,
			Description: fmt.Sprintf("Average glucose was above 180 mg/dL on %d of %d days. "+
				"You may want to go over these readings with your clinician.", highDays, n),
			Confidence: models.HighConfidence,
		})
	}

	if avgTIR := tirSum / total; avgTIR < lowTimeInRangePct {
		patterns = append(patterns, models.Pattern{
			Type: models.LowTimeInRange,
			Description: fmt.Sprintf("On average %.0f%% of readings were within 70-180 mg/dL across %d days. "+
				"This may be worth discussing with your clinician.", avgTIR, n),
			Confidence: models.HighConfidence,
		})
	}

	if avgSpikes := spikeSum / total; avgSpikes > frequentSpikesDaily {
		patterns = append(patterns, models.Pattern{
			Type: models.FrequentSpikes,
			Description: fmt.Sprintf("Readings above 180 mg/dL averaged %.1f per day across %d days. "+
				"You may want to review these days with your clinician.", avgSpikes, n),
			Confidence: models.MediumConfidence,
		})
	}

	if n >= 2*trendDays {
		recent := meanGlucose(days[n-trendDays:])
		previous := meanGlucose(days[n-2*trendDays : n-trendDays])
		if recent < previous-improvementMgDL {
			patterns = append(patterns, models.Pattern{
				Type: models.ImprovingTrend,
				Description: fmt.Sprintf("Average glucose over the last %d days was %.0f mg/dL lower than over the %d days before.",
					trendDays, previous-recent, trendDays),
				Confidence: models.MediumConfidence,
			})
		}
	}

	if avgMeals := mealSum / total; avgMeals >= minMealsPerDay && avgMeals <= maxMealsPerDay {
		patterns = append(patterns, models.Pattern{
			Type:        models.ConsistentMeals,
			Description: fmt.Sprintf("An average of %.1f meals per day was logged across %d days.", avgMeals, n),
			Confidence:  models.MediumConfidence,
		})
	}

	return patterns
}

func meanGlucose(days []models.DailyInsight) float64 {
	var sum float64
	for _, d := range days {
		sum += d.AvgGlucose
	}
	return sum / float64(len(days))
}
