package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insightloom-cli/internal/analysis"
	"github.com/KaramelBytes/insightloom-cli/internal/insight"
)

var (
	predFlags      analysisFlags
	predFormat     string
	predColumn     string
	predPeriods    int
	predMetric     string
	predImpact     string
	predChange     float64
	predInvestment string
	predReturn     string
	predAmount     float64
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecasts, key drivers, what-if scenarios and ROI projections",
	Example: `  insightloom predict forecast sales.csv --column revenue --periods 6
  insightloom predict drivers sales.csv --target revenue
  insightloom predict whatif sales.csv --metric ad_spend --impact revenue --change 15
  insightloom predict roi campaigns.csv --investment spend --return revenue --amount 5000`,
}

var predictForecastCmd = &cobra.Command{
	Use:   "forecast <file.csv>",
	Short: "Extend a linear fit of numeric columns past the last row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cleaned, err := prepare(cmd, &predFlags, args[0])
		if err != nil {
			return err
		}
		opt := predOptions(cmd)
		var forecasts []analysis.Forecast
		if predColumn != "" {
			f, err := analysis.ForecastColumn(cleaned.Table, predColumn, predPeriods, opt)
			if err != nil {
				return err
			}
			forecasts = []analysis.Forecast{*f}
		} else {
			opt.ForecastPeriods = predPeriods
			var notes []analysis.Note
			forecasts, notes = analysis.ForecastAll(cleaned.Table, opt)
			for _, n := range notes {
				fmt.Printf("⚠ %s\n", n.Message)
			}
			if len(forecasts) == 0 {
				return fmt.Errorf("no column in %s could be forecast", cleaned.Table.Name)
			}
		}
		return printResult(forecasts, predFormat, func() {
			for _, f := range forecasts {
				fmt.Printf("✓ %s over %s: %s, %.2f per period\n", insight.Title(f.Column), f.OrderedBy, f.Direction, f.RatePerPeriod)
				fmt.Printf("  Current average: %.2f\n", f.CurrentMean)
				fmt.Printf("  Predicted average (next %d periods): %.2f (%+.1f%%)\n", f.Periods, f.ForecastMean, f.ChangePct)
				for i, v := range f.Values {
					fmt.Printf("  +%d: %.2f\n", i+1, v)
				}
			}
		})
	},
}

var predictDriversCmd = &cobra.Command{
	Use:   "drivers <file.csv>",
	Short: "Rank numeric columns by how strongly they move with a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cleaned, err := prepare(cmd, &predFlags, args[0])
		if err != nil {
			return err
		}
		opt := predOptions(cmd)
		target := opt.TargetColumn
		if target == "" {
			return fmt.Errorf("--target is required (or set target_column in config)")
		}
		drivers, err := analysis.KeyDrivers(cleaned.Table, target, opt)
		if err != nil {
			return err
		}
		return printResult(drivers, predFormat, func() {
			fmt.Printf("✓ Key drivers of %s\n", insight.Title(target))
			for i, d := range drivers {
				fmt.Printf("  %d. %s: %s (r=%+.2f, %d rows)\n", i+1, insight.Title(d.Column), d.Impact, d.R, d.N)
			}
		})
	},
}

var predictWhatIfCmd = &cobra.Command{
	Use:   "whatif <file.csv>",
	Short: "Estimate how one metric moves when a correlated one changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if predMetric == "" || predImpact == "" {
			return fmt.Errorf("--metric and --impact are required")
		}
		cleaned, err := prepare(cmd, &predFlags, args[0])
		if err != nil {
			return err
		}
		s, err := analysis.WhatIf(cleaned.Table, predMetric, predImpact, predChange, predOptions(cmd))
		if err != nil {
			return err
		}
		return printResult(s, predFormat, func() {
			fmt.Printf("✓ If %s changes by %+.1f%%:\n", insight.Title(s.Metric), s.ChangePct)
			fmt.Printf("  %s: %.2f → %.2f\n", insight.Title(s.Metric), s.CurrentMetric, s.ScenarioMetric)
			fmt.Printf("  %s: %.2f → %.2f (%+.1f%%)\n", insight.Title(s.Impact), s.CurrentImpact, s.ScenarioImpact, s.ImpactChangePct)
			fmt.Printf("  Relationship: %s (r=%.2f)\n", s.Strength, s.R)
		})
	},
}

var predictROICmd = &cobra.Command{
	Use:   "roi <file.csv>",
	Short: "Project the return on an investment from historical ratios",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if predInvestment == "" || predReturn == "" {
			return fmt.Errorf("--investment and --return are required")
		}
		cleaned, err := prepare(cmd, &predFlags, args[0])
		if err != nil {
			return err
		}
		p, err := analysis.ProjectROI(cleaned.Table, predInvestment, predReturn, predAmount)
		if err != nil {
			return err
		}
		return printResult(p, predFormat, func() {
			fmt.Printf("✓ ROI projection for %.2f from %d rows\n", p.Amount, p.Rows)
			fmt.Printf("  Historical average ROI: %.1f%% (±%.1f)\n", p.AverageROI, p.ROIStd)
			fmt.Printf("  Projected return: %.2f, net gain: %.2f\n", p.ProjectedReturn, p.NetGain)
			fmt.Printf("  Best case: %.2f, worst case: %.2f\n", p.BestCase, p.WorstCase)
			fmt.Printf("  Confidence: %s\n", p.Confidence)
			fmt.Printf("  %s\n", p.Recommendation)
		})
	},
}

// predOptions is the layered analysis options for a predict subcommand.
// prepare has already validated them.
func predOptions(cmd *cobra.Command) analysis.Options {
	pc, _ := predFlags.pipelineConfig(cmd.Flags(), cfg)
	return pc.Analysis
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.AddCommand(predictForecastCmd, predictDriversCmd, predictWhatIfCmd, predictROICmd)

	pfs := predictCmd.PersistentFlags()
	predFlags.register(pfs)
	pfs.StringVar(&predFormat, "format", "text", "output format: text|json|yaml")

	predictForecastCmd.Flags().StringVar(&predColumn, "column", "", "column to forecast (all numeric columns if omitted)")
	predictForecastCmd.Flags().IntVar(&predPeriods, "periods", 5, "periods to forecast")
	predictWhatIfCmd.Flags().StringVar(&predMetric, "metric", "", "column that changes")
	predictWhatIfCmd.Flags().StringVar(&predImpact, "impact", "", "column whose response is estimated")
	predictWhatIfCmd.Flags().Float64Var(&predChange, "change", 10, "percent change applied to --metric")
	predictROICmd.Flags().StringVar(&predInvestment, "investment", "", "column holding amounts invested")
	predictROICmd.Flags().StringVar(&predReturn, "return", "", "column holding returns")
	predictROICmd.Flags().Float64Var(&predAmount, "amount", 1000, "amount to project")
}
