package correlation

import (
	"context"
	"sort"
	"time"

	"mcp-glucose-insights/internal/models"
)

// Reliable keeps only high and medium confidence correlations, preserving order.
func Reliable(correlations []models.MealCorrelation) []models.MealCorrelation {
	out := make([]models.MealCorrelation, 0, len(correlations))
	for _, c := range correlations {
		if c.Confidence.Reliable() {
			out = append(out, c)
		}
	}
	return out
}

// Rank sorts reliable correlations by glucose change. best holds the k smallest
// changes ascending, worst the k largest descending. With fewer than 2k reliable
// entries the two lists share meals.
func Rank(correlations []models.MealCorrelation, k int) (best, worst []models.MealCorrelation) {
	sorted := Reliable(correlations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GlucoseResponse.Change < sorted[j].GlucoseResponse.Change
	})

	n := k
	if n > len(sorted) {
		n = len(sorted)
	}
	if n <= 0 {
		return []models.MealCorrelation{}, []models.MealCorrelation{}
	}

	best = append([]models.MealCorrelation(nil), sorted[:n]...)
	worst = make([]models.MealCorrelation, 0, n)
	for i := len(sorted) - 1; i >= len(sorted)-n; i-- {
		worst = append(worst, sorted[i])
	}
	return best, worst
}

// BestAndWorst ranks the meals of [start, end]. k defaults to 5.
func (e *Engine) BestAndWorst(ctx context.Context, subjectID string, start, end time.Time, k int) (best, worst []models.MealCorrelation, err error) {
	if k <= 0 {
		k = 5
	}
	correlations, err := e.CorrelateRange(ctx, subjectID, start, end)
	if err != nil {
		return nil, nil, err
	}
	best, worst = Rank(correlations, k)
	return best, worst, nil
}

// ResponseByMealType averages the response of all correlations in range per meal type.
func (e *Engine) ResponseByMealType(ctx context.Context, subjectID string, start, end time.Time) (map[models.MealType]models.MealTypeResponse, error) {
	correlations, err := e.CorrelateRange(ctx, subjectID, start, end)
	if err != nil {
		return nil, err
	}

	type acc struct {
		change float64
		spikes int
		count  int
	}
	groups := make(map[models.MealType]*acc)
	for _, c := range correlations {
		a, ok := groups[c.MealType]
		if !ok {
			a = &acc{}
			groups[c.MealType] = a
		}
		a.change += c.GlucoseResponse.Change
		a.count++
		if c.GlucoseResponse.Spiked {
			a.spikes++
		}
	}

	out := make(map[models.MealType]models.MealTypeResponse, len(groups))
	for t, a := range groups {
		out[t] = models.MealTypeResponse{
			AvgChange: models.Round1(a.change / float64(a.count)),
			SpikeRate: models.Round2(float64(a.spikes) / float64(a.count)),
			Count:     a.count,
		}
	}
	return out, nil
}
