package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/spread"
)

var (
	renderTenant string
	renderCase   string
	renderType   string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render credit spreads for a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		renderer := spread.NewRenderer(st, metrics.NewResolver(st))

		types := []model.SpreadType{
			model.SpreadTypeBalanceSheet,
			model.SpreadTypeIncomeStatement,
			model.SpreadTypeCashFlow,
		}
		if renderType != "" {
			types = []model.SpreadType{model.SpreadType(strings.ToUpper(renderType))}
		}

		for _, t := range types {
			rendered, err := renderer.RenderAndSave(ctx, renderTenant, renderCase, t)
			if err != nil {
				return err
			}
			printSpread(cmd, rendered)
		}
		return nil
	},
}

func printSpread(cmd *cobra.Command, s *model.RenderedSpread) {
	cmd.Printf("\n%s (%s)\n", s.SpreadType, s.Status)

	cmd.Printf("%-34s", "")
	for _, col := range s.Columns {
		cmd.Printf("%18s", col.Label)
	}
	cmd.Println()

	section := ""
	for _, row := range s.Rows {
		if row.Section != section {
			section = row.Section
			cmd.Printf("%s\n", section)
		}
		cmd.Printf("  %-32s", row.Label)
		for _, col := range s.Columns {
			cmd.Printf("%18s", row.Cells[col.Key].Display)
		}
		cmd.Println()
	}

	for _, w := range s.Warnings {
		cmd.Printf("warning: %s\n", w)
	}
}

func init() {
	renderCmd.Flags().StringVar(&renderTenant, "tenant", "", "tenant id")
	renderCmd.Flags().StringVar(&renderCase, "case", "", "case id")
	renderCmd.Flags().StringVar(&renderType, "type", "", "spread type (default: all)")
	_ = renderCmd.MarkFlagRequired("tenant")
	_ = renderCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(renderCmd)
}
