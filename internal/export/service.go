package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
)

// JobLister is the slice of the job repository the export needs.
type JobLister interface {
	List(ctx context.Context, limit int) ([]*entity.Job, error)
}

// Service produces XLSX bytes of the job history.
type Service struct {
	jobs   JobLister
	logger *slog.Logger
}

func NewService(jobs JobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

const sheet = "Jobs"

var headers = []string{
	"Job ID",
	"Created",
	"Finished",
	"Source",
	"Strategy",
	"Model",
	"Phase",
	"Percent",
	"Elapsed (ms)",
	"Error Kind",
	"Error",
	"Result Preview",
}

// ExportJobsXLSX returns a workbook of jobs created within [from, to].
// If only from is provided -> from..now.
// If only to is provided   -> beginning..to.
// If neither is provided   -> every stored job.
func (s *Service) ExportJobsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	all, err := s.jobs.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	var rows []*entity.Job
	for _, j := range all {
		if from != nil && j.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && j.CreatedAt.After(*to) {
			continue
		}
		rows = append(rows, j)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, bold)
	}

	for i, j := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, j.ID)
		write(2, j.CreatedAt.UTC().Format(time.RFC3339))
		finished := ""
		elapsed := j.UpdatedAt.Sub(j.CreatedAt).Milliseconds()
		if j.FinishedAt != nil {
			finished = j.FinishedAt.UTC().Format(time.RFC3339)
			elapsed = j.FinishedAt.Sub(j.CreatedAt).Milliseconds()
		}
		write(3, finished)
		write(4, j.Source)
		write(5, string(j.Strategy))
		write(6, j.Model)
		write(7, string(j.Phase))
		write(8, j.Percent)
		write(9, elapsed)
		write(10, j.ErrorKind)
		write(11, truncate(j.ErrorMessage, 200))
		preview := ""
		if j.Result != nil {
			preview = truncate(*j.Result, 500)
		}
		write(12, preview)
	}

	_ = f.SetColWidth(sheet, "A", "A", 30) // id
	_ = f.SetColWidth(sheet, "B", "C", 22) // timestamps
	_ = f.SetColWidth(sheet, "D", "D", 32) // source
	_ = f.SetColWidth(sheet, "E", "J", 14)
	_ = f.SetColWidth(sheet, "K", "K", 48)
	_ = f.SetColWidth(sheet, "L", "L", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
