package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom-cli/internal/history"
	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List, show or delete saved analysis runs",
	Example: `  insightloom analyze sales.csv --save
  insightloom runs list
  insightloom runs show 3f2a --format markdown`,
}

var runsJSON bool

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open("")
		if err != nil {
			return err
		}
		entries, err := store.List()
		if err != nil {
			return err
		}
		if runsJSON {
			b, err := utils.PrettyJSON(entries)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		if len(entries) == 0 {
			fmt.Println("No saved runs. Use 'insightloom analyze <file> --save'.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTARTED\tROWS\tQUALITY\tFINDINGS\tACTIONS")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f%%\t%d\t%d\n",
				shortID(e.ID), e.Source, e.StartedAt.Format("2006-01-02 15:04"), e.Rows, e.Quality, e.Findings, e.Actions)
		}
		return w.Flush()
	},
}

var runsShowFormat string

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved run (ID or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open("")
		if err != nil {
			return err
		}
		run, err := store.Load(args[0])
		if err != nil {
			return err
		}
		body, err := encodeRun(run, runsShowFormat)
		if err != nil {
			return err
		}
		fmt.Print(string(body))
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved run (ID or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open("")
		if err != nil {
			return err
		}
		run, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if err := store.Delete(run.ID); err != nil {
			return err
		}
		fmt.Printf("✓ Deleted run %s (%s)\n", run.ID, run.Source)
		return nil
	},
}

func saveRun(run *pipeline.AnalysisRun, quiet bool) error {
	store, err := history.Open("")
	if err != nil {
		return err
	}
	if _, err := store.Save(run); err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("💾 Saved run %s\n", run.ID)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsListCmd.Flags().BoolVar(&runsJSON, "json", false, "print entries as JSON")
	runsShowCmd.Flags().StringVar(&runsShowFormat, "format", "markdown", "output format: markdown|json|yaml")
}
