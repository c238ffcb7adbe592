package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"mcp-glucose-insights/internal/models"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// render writes v as indented JSON, or through text when the text format is selected.
func render(w io.Writer, v interface{}, text func(io.Writer)) error {
	switch outFormat {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatText, "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", outFormat)
	}
}

// parseDay reads a YYYY-MM-DD argument in loc; empty means today.
func parseDay(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation(models.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return t, nil
}

func mealLabel(s *models.MealSummary) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s, %+.1f mg/dL)", s.Name, s.MealType, s.GlucoseChange)
}

func writeDaily(w io.Writer, date string, d *models.DailyInsight) {
	fmt.Fprintf(w, "Date:          %s\n", date)
	fmt.Fprintf(w, "Avg glucose:   %.1f mg/dL\n", d.AvgGlucose)
	fmt.Fprintf(w, "Time in range: %.1f%%\n", d.TimeInRangePct)
	fmt.Fprintf(w, "Spikes:        %d\n", d.SpikeCount)
	fmt.Fprintf(w, "Meals:         %d (breakfast %d, lunch %d, dinner %d, snack %d)\n",
		d.MealCountByType.Total(), d.MealCountByType.Breakfast, d.MealCountByType.Lunch,
		d.MealCountByType.Dinner, d.MealCountByType.Snack)
	fmt.Fprintf(w, "Best meal:     %s\n", mealLabel(d.BestMeal))
	fmt.Fprintf(w, "Worst meal:    %s\n", mealLabel(d.WorstMeal))
}

func writeRanked(w io.Writer, title string, meals []models.RankedMeal) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(meals) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	for _, m := range meals {
		fmt.Fprintf(w, "  %s  %-9s %+6.1f  %s\n", m.EatenAt.Format("01-02 15:04"), m.MealType, m.GlucoseChange, m.Name)
	}
}

func writeWeekly(w io.Writer, s *models.WeeklySummary) {
	fmt.Fprintf(w, "Week:          %s .. %s\n", s.WeekStart, s.WeekEnd)
	fmt.Fprintf(w, "Avg glucose:   %.1f mg/dL\n", s.AvgGlucose)
	fmt.Fprintf(w, "Time in range: %.1f%%\n", s.TimeInRangePct)
	fmt.Fprintf(w, "Spikes:        %d\n", s.TotalSpikes)
	fmt.Fprintf(w, "Meals:         %d\n", s.TotalMeals)
	writeRanked(w, "Best meals", s.BestMeals)
	writeRanked(w, "Worst meals", s.WorstMeals)
	fmt.Fprintln(w, "Days:")
	for _, d := range s.DailySummaries {
		fmt.Fprintf(w, "  %s  avg %6.1f  tir %5.1f%%  spikes %2d  meals %d\n",
			d.Date, d.AvgGlucose, d.TimeInRangePct, d.SpikeCount, d.MealCount)
	}
}

func writeDisclaimer(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimSpace(models.InsightsDisclaimer))
}
