package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-enricher/internal/export"
)

var exportFlags struct {
	from string
	to   string
	out  string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the job history to an XLSX file",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.from, "from", "", "first day to include (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportFlags.to, "to", "", "last day to include (YYYY-MM-DD)")
	exportCmd.Flags().StringVarP(&exportFlags.out, "output", "o", "jobs.xlsx", "output file")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	from, err := day(exportFlags.from, false)
	if err != nil {
		return err
	}
	to, err := day(exportFlags.to, true)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	data, err := export.NewService(a.repo, logger).ExportJobsXLSX(ctx, from, to)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportFlags.out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportFlags.out, len(data))
	return nil
}

// day parses a YYYY-MM-DD flag; the upper bound covers the whole day.
func day(s string, end bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
