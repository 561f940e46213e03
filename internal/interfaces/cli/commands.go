package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"proposal-ai-api/internal/application/cost"
	"proposal-ai-api/internal/domain/catalog"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithHeaderAutoFormat(tw.Off),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		}),
	)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func usd(v float64) string {
	return fmt.Sprintf("$%.6f", v)
}

func newModelsCommand(opts *options) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models and their prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			models := catalog.Models()
			if provider != "" {
				p, ok := catalog.ParseProvider(provider)
				if !ok {
					return fmt.Errorf("unknown provider %q", provider)
				}
				filtered := models[:0]
				for _, m := range models {
					if m.Provider == p {
						filtered = append(filtered, m)
					}
				}
				models = filtered
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, models)
			}
			opts.title(out, "Models (USD per million tokens)")
			table := newTable(out)
			table.Header([]string{"Model", "Provider", "Input", "Output", "Cached", "Caching", "Thinking", "Max Output"})
			for _, m := range models {
				if err := table.Append([]string{
					m.ID,
					m.Provider.String(),
					fmt.Sprintf("%.3f", m.InputPerMillion),
					fmt.Sprintf("%.3f", m.OutputPerMillion),
					fmt.Sprintf("%.3f", m.CachedPerMillion),
					yesNo(m.SupportsCaching),
					yesNo(m.SupportsThinking),
					strconv.Itoa(m.MaxOutputTokens),
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider (anthropic, google, openai)")
	return cmd
}

func newStrategiesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Show the per-level model strategy table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategies := catalog.Strategies()
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, strategies)
			}
			opts.title(out, fmt.Sprintf("Section level strategies (default %s)", catalog.DefaultLevel))
			table := newTable(out)
			table.Header([]string{"Level", "Primary", "Fallback", "Thinking", "Temperature", "Description"})
			for _, s := range strategies {
				if err := table.Append([]string{
					string(s.Level),
					s.PrimaryModel,
					s.FallbackModel,
					strconv.Itoa(s.ThinkingBudget),
					strconv.FormatFloat(s.Temperature, 'f', 1, 64),
					s.Description,
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func newEstimateCommand(opts *options) *cobra.Command {
	var (
		model                 string
		input, output, cached int
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the cost of a call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if input < 0 || output < 0 || cached < 0 {
				return fmt.Errorf("token counts must not be negative")
			}
			if _, ok := catalog.LookupModel(model); !ok {
				return fmt.Errorf("unknown model %q", model)
			}
			b := cost.Estimate(model, input, output, cached)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, struct {
					Model string `json:"model"`
					cost.Breakdown
				}{model, b})
			}
			opts.title(out, "Cost estimate for "+model)
			table := newTable(out)
			table.Header([]string{"Item", "USD"})
			rows := [][]string{
				{"input", usd(b.InputCost)},
				{"output", usd(b.OutputCost)},
				{"cache savings", usd(b.CacheSavings)},
				{"total", usd(b.TotalCost)},
			}
			for _, row := range rows {
				if err := table.Append(row); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model id")
	cmd.Flags().IntVar(&input, "input", 0, "input tokens")
	cmd.Flags().IntVar(&output, "output", 0, "output tokens")
	cmd.Flags().IntVar(&cached, "cached", 0, "cached input tokens")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newRecommendCommand(opts *options) *cobra.Command {
	var (
		number string
		depth  int
	)
	cmd := &cobra.Command{
		Use:   "recommend <title>",
		Short: "Recommend a section level for a chapter title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := catalog.RecommendLevel(number, args[0], depth)
			resolved := catalog.Resolve(string(level))

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, map[string]any{
					"level":          level,
					"primary_model":  resolved.PrimaryModel,
					"fallback_model": resolved.FallbackModel,
				})
			}
			opts.title(out, fmt.Sprintf("%s → %s", args[0], level))
			fmt.Fprintf(out, "primary:  %s\nfallback: %s\n", resolved.PrimaryModel, resolved.FallbackModel)
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "chapter number, e.g. 3.2")
	cmd.Flags().IntVar(&depth, "depth", 0, "heading depth")
	return cmd
}
