package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/dataset"
	"github.com/KaramelBytes/insightloom-cli/internal/pipeline"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

var (
	expFlags  analysisFlags
	expColumn string
	expFormat string
)

var exploreCmd = &cobra.Command{
	Use:   "explore <file.csv>",
	Short: "Print quick plain-language insights per column",
	Example: `  insightloom explore sales.csv
  insightloom explore sales.csv --column region
  insightloom explore sales.csv --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cleaned, err := prepare(cmd, &expFlags, args[0])
		if err != nil {
			return err
		}
		var insights []analysis.ColumnInsight
		if expColumn != "" {
			ci, err := analysis.QuickInsights(cleaned.Table, expColumn)
			if err != nil {
				return err
			}
			insights = []analysis.ColumnInsight{ci}
		} else {
			insights = analysis.QuickInsightsAll(cleaned.Table)
		}
		return printResult(insights, expFormat, func() {
			fmt.Printf("✓ Explored %s: %d rows, %d columns\n", cleaned.Table.Name, cleaned.Table.NumRows(), cleaned.Table.NumCols())
			for _, ci := range insights {
				fmt.Printf("\n%s (%s)\n", ci.Column, ci.Type)
				for _, l := range ci.Lines {
					fmt.Printf("  %s\n", l)
				}
			}
		})
	},
}

// prepare loads and cleans path with the loader and cleaning flags in flags.
func prepare(cmd *cobra.Command, flags *analysisFlags, path string) (*analysis.CleanResult, error) {
	pc, err := flags.pipelineConfig(cmd.Flags(), cfg)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cleaned, err := pipeline.PrepareFile(ctx, path, pc)
	if err != nil {
		var malformed *dataset.MalformedInputError
		if errors.As(err, &malformed) {
			return nil, fmt.Errorf("%s: %w", explainError(err, "", ""), err)
		}
		return nil, err
	}
	return cleaned, nil
}

// printResult encodes v as json or yaml, or calls text for the default format.
func printResult(v any, format string, text func()) error {
	switch strings.ToLower(format) {
	case "", "text":
		text()
		return nil
	case "json":
		b, err := utils.PrettyJSON(v)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	case "yaml", "yml":
		b, err := utils.YAML(v)
		if err != nil {
			return err
		}
		fmt.Print(string(b))
		return nil
	}
	return fmt.Errorf("unsupported --format: %s (use text|json|yaml)", format)
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	fs := exploreCmd.Flags()
	expFlags.register(fs)
	fs.StringVar(&expColumn, "column", "", "only describe this column")
	fs.StringVar(&expFormat, "format", "text", "output format: text|json|yaml")
}
