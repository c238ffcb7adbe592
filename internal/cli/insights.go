package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mcp-glucose-insights/internal/models"
)

var (
	subjectID   string
	dateFlag    string
	readOnly    bool
	weekStart   string
	fromFlag    string
	toFlag      string
	patternDays int
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Generate (or read) the daily insight of one day",
	RunE:  runDaily,
}

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate (or read) the weekly summary starting at a day",
	RunE:  runWeekly,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Generate daily insights for every day of a range",
	RunE:  runBackfill,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Look for multi-day patterns in cached daily insights",
	RunE:  runPatterns,
}

func init() {
	for _, c := range []*cobra.Command{dailyCmd, weeklyCmd, backfillCmd, patternsCmd, correlateCmd, timelineCmd} {
		c.Flags().StringVarP(&subjectID, "subject", "s", "", "Subject id")
		_ = c.MarkFlagRequired("subject")
	}

	dailyCmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Day (YYYY-MM-DD, default today)")
	dailyCmd.Flags().BoolVar(&readOnly, "cached", false, "Only read the cached insight")

	weeklyCmd.Flags().StringVarP(&weekStart, "week-start", "w", "", "First day of the week (YYYY-MM-DD, default 6 days ago)")
	weeklyCmd.Flags().BoolVar(&readOnly, "cached", false, "Only read the cached summary")

	backfillCmd.Flags().StringVar(&fromFlag, "from", "", "First day (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&toFlag, "to", "", "Last day (YYYY-MM-DD, default today)")
	_ = backfillCmd.MarkFlagRequired("from")

	patternsCmd.Flags().IntVar(&patternDays, "days", 14, "Number of days to look back, including today")
}

func runDaily(cmd *cobra.Command, args []string) error {
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

	if !readOnly {
		if _, err := a.Generator.GenerateDaily(ctx, subjectID, day); err != nil {
			return err
		}
	}
	rec, err := a.Generator.GetDaily(ctx, subjectID, day)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no daily insight cached for %s", day.Format(models.DateLayout))
	}
	return render(cmd.OutOrStdout(), rec, func(w io.Writer) {
		writeDaily(w, rec.Date, &rec.DailyInsight)
		writeDisclaimer(w)
	})
}

func runWeekly(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	start, err := parseDay(weekStart, a.Location)
	if err != nil {
		return err
	}
	if weekStart == "" {
		start = start.AddDate(0, 0, -6)
	}

	if !readOnly {
		if _, err := a.Generator.GenerateWeekly(ctx, subjectID, start); err != nil {
			return err
		}
	}
	rec, err := a.Generator.GetWeekly(ctx, subjectID, start)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no weekly summary cached for %s", start.Format(models.DateLayout))
	}
	return render(cmd.OutOrStdout(), rec, func(w io.Writer) {
		writeWeekly(w, &rec.WeeklySummary)
		writeDisclaimer(w)
	})
}

func runBackfill(cmd *cobra.Command, args []string) error {
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
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", to.Format(models.DateLayout), from.Format(models.DateLayout))
	}

	generated := a.Generator.BatchGenerate(ctx, subjectID, from, to)
	result := map[string]int{"generated": generated}
	return render(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Generated %d daily insights\n", generated)
	})
}

func runPatterns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if patternDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	end, _ := parseDay("", a.Location)
	start := end.AddDate(0, 0, -(patternDays - 1))

	found, err := a.Detector.Detect(ctx, subjectID, start, end)
	if err != nil {
		return err
	}
	result := map[string]interface{}{"patterns": found, "disclaimer": models.InsightsDisclaimer}
	return render(cmd.OutOrStdout(), result, func(w io.Writer) {
		for _, p := range found {
			fmt.Fprintf(w, "[%s, %s] %s\n", p.Type, p.Confidence, p.Description)
		}
		writeDisclaimer(w)
	})
}
