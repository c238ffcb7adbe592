package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mcp-glucose-insights/internal/models"
)

// ingestFile is the import format: readings and analysed meals of any subjects.
type ingestFile struct {
	Readings []models.GlucoseReading `json:"readings"`
	Meals    []models.MealRecord     `json:"meals"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>",
	Short: "Load glucose readings and meals from a JSON file",
	Long: `Loads {"readings": [...], "meals": [...]} into the database.
Use "-" to read from stdin. Meals with an existing id are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	var in ingestFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	for i, m := range in.Meals {
		if m.ID == "" || m.SubjectID == "" {
			return fmt.Errorf("meal %d: id and subjectId are required", i)
		}
		if !m.MealType.Valid() {
			return fmt.Errorf("meal %s: unknown meal type %q", m.ID, m.MealType)
		}
	}

	ctx := cmd.Context()
	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.Store.SaveReadings(ctx, in.Readings); err != nil {
		return err
	}
	for i := range in.Meals {
		if err := a.Store.SaveMeal(ctx, &in.Meals[i]); err != nil {
			return err
		}
	}
	a.Log.Info("Ingested data", "readings", len(in.Readings), "meals", len(in.Meals))

	result := map[string]int{"readings": len(in.Readings), "meals": len(in.Meals)}
	return render(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Ingested %d readings and %d meals\n", len(in.Readings), len(in.Meals))
	})
}
