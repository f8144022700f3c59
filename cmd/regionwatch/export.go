package main

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Saul-Punybz/regionwatch/internal/export"
	"github.com/Saul-Punybz/regionwatch/internal/models"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export monitoring data",
	}
	cmd.AddCommand(exportXLSXCmd())
	return cmd
}

func exportXLSXCmd() *cobra.Command {
	var (
		output   string
		days     int
		district string
	)

	cmd := &cobra.Command{
		Use:   "xlsx",
		Short: "Write sites, queries, recent results and district totals to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			from := time.Now().AddDate(0, 0, -days)
			var d export.WorkbookData
			if d.Sites, err = a.Sites.ListAll(ctx); err != nil {
				return err
			}
			if d.Queries, err = a.Queries.List(ctx, false, nil); err != nil {
				return err
			}
			if d.Results, err = a.Results.List(ctx, models.ResultFilter{From: &from, District: district, Limit: 5000}); err != nil {
				return err
			}
			if d.Districts, err = a.Sites.Districts(ctx); err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), output, func(w io.Writer) error {
				return export.WriteWorkbook(w, d)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output .xlsx file")
	cmd.Flags().IntVar(&days, "days", 30, "include results from the last N days")
	cmd.Flags().StringVar(&district, "district", "", "only results of this district")
	return cmd
}
