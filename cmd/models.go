package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
	"github.com/KaramelBytes/insightloom-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog and pricing used for cost estimates",
	Example: `  insightloom models show
  insightloom models show --provider anthropic
  insightloom models sync --file ./models.json`,
}

var modelsProvider string

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current model catalog as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		want := ""
		if modelsProvider != "" {
			want = ai.NormalizeProvider(modelsProvider)
		}
		out := []ai.ModelInfo{}
		for _, m := range ai.Catalog() {
			if want == "" || m.Provider == want {
				out = append(out, m)
			}
		}
		b, err := utils.PrettyJSON(out)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

var modelsProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered AI providers and their default models",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range ai.Providers() {
			fmt.Printf("%-12s %s\n", p, ai.DefaultModel(p))
		}
		return nil
	},
}

var syncPath string

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge model pricing from a JSON file into the catalog",
	Long: `Merges a JSON object keyed by model name into the in-memory catalog and prints it.
Set model_catalog in the config file to apply the same file on every run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		if err := ai.MergeCatalogFile(syncPath); err != nil {
			return err
		}
		fmt.Printf("✓ Merged model catalog from %s (%d models)\n", syncPath, len(ai.Catalog()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsProvidersCmd)
	modelsCmd.AddCommand(modelsSyncCmd)

	modelsShowCmd.Flags().StringVar(&modelsProvider, "provider", "", "only show models for this provider")
	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
}
