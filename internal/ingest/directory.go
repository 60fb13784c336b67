package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileResult is the outcome of submitting one file.
type FileResult struct {
	Path      string
	JobID     string
	Duplicate bool
	Err       string
}

type DirStats struct {
	Scanned    uint32
	Matched    uint32
	Submitted  uint32
	Duplicates uint32
	Failed     uint32
}

// SubmitDirectory walks root and submits every PDF it finds.
// Per-file failures are recorded in the results and do not stop the walk.
func (in *Inbox) SubmitDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path) {
			return nil
		}
		stats.Matched++

		r := in.SubmitFile(ctx, path)
		results = append(results, r)
		switch {
		case r.Err != "":
			stats.Failed++
		case r.Duplicate:
			stats.Duplicates++
		default:
			stats.Submitted++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	in.logger.Info("inbox.scan.done", "root", root, "scanned", stats.Scanned, "matched", stats.Matched, "submitted", stats.Submitted, "duplicates", stats.Duplicates, "failed", stats.Failed)
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
