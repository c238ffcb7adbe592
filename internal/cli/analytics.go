package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mcp-glucose-insights/internal/models"
	"mcp-glucose-insights/internal/timeline"
)

var weeklyView bool

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Show the glucose response to each meal of a range",
	RunE:  runCorrelate,
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the hourly timeline of a day, or the daily timeline of a week",
	RunE:  runTimeline,
}

func init() {
	correlateCmd.Flags().StringVar(&fromFlag, "from", "", "First day (YYYY-MM-DD, default today)")
	correlateCmd.Flags().StringVar(&toFlag, "to", "", "Last day (YYYY-MM-DD, default today)")

	timelineCmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Day, or first day of the week (YYYY-MM-DD, default today)")
	timelineCmd.Flags().BoolVar(&weeklyView, "week", false, "Show seven daily buckets instead of 24 hourly ones")
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	from, err := parseDay(fromFlag, a.Location)
	if err != nil {
		return err
	}
	to, err := parseDay(toFlag, a.Location)
	if err != nil {
		return err
	}
	start, _ := timeline.DaysRange(from, 1, a.Location)
	_, end := timeline.DaysRange(to, 1, a.Location)

	correlations, err := a.Engine.CorrelateRange(ctx, subjectID, start, end)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), correlations, func(w io.Writer) {
		if len(correlations) == 0 {
			fmt.Fprintln(w, "No meals with surrounding glucose readings")
			return
		}
		for _, c := range correlations {
			spiked := ""
			if c.GlucoseResponse.Spiked {
				spiked = " spike"
			}
			fmt.Fprintf(w, "%s  %-9s base %5.1f  peak %5.1f  %+6.1f  %-6s%s  %s\n",
				c.EatenAt.In(a.Location).Format("2006-01-02 15:04"), c.MealType,
				c.GlucoseResponse.Baseline, c.GlucoseResponse.Peak, c.GlucoseResponse.Change,
				c.Confidence, spiked, c.MealName)
		}
		writeDisclaimer(w)
	})
}

func runTimeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	day, err := parseDay(dateFlag, a.Location)
	if err != nil {
		return err
	}

	if weeklyView {
		tl, err := a.Aggregator.WeeklyTimeline(ctx, subjectID, day)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), tl, func(w io.Writer) {
			fmt.Fprintf(w, "%s .. %s\n", tl.StartDate, tl.EndDate)
			for _, d := range tl.DailyData {
				fmt.Fprintf(w, "  %s  avg %6.1f  min %6.1f  max %6.1f  meals %d  spikes %d\n",
					d.Date, d.AvgGlucose, d.MinGlucose, d.MaxGlucose, d.MealCount, d.SpikeCount)
			}
		})
	}

	tl, err := a.Aggregator.DailyTimeline(ctx, subjectID, day)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), tl, func(w io.Writer) {
		fmt.Fprintln(w, tl.Date)
		for _, h := range tl.HourlyData {
			if h.AvgGlucose == 0 && h.MealCount == 0 {
				continue
			}
			fmt.Fprintf(w, "  %02d:00  avg %6.1f  min %6.1f  max %6.1f%s\n",
				h.Hour, h.AvgGlucose, h.MinGlucose, h.MaxGlucose, mealNames(h.Meals))
		}
	})
}

func mealNames(meals []models.TimelineMeal) string {
	if len(meals) == 0 {
		return ""
	}
	out := "  meals:"
	for _, m := range meals {
		out += fmt.Sprintf(" %s (%s, %.0f kcal);", m.Name, m.MealType, m.Calories)
	}
	return out
}
