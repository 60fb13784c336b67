package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/ocr-enricher/constants"
	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

// Outcome is what a finished job leaves behind.
type Outcome struct {
	Result       *string
	ErrorKind    string
	ErrorMessage string
}

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	SaveProgress(ctx context.Context, r progress.Report) error
	Finish(ctx context.Context, r progress.Report, out Outcome) error
	Get(ctx context.Context, id string) (*entity.Job, error)
	List(ctx context.Context, limit int) ([]*entity.Job, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) ([]string, error)
}

const jobsTable = "jobs"

var jobColumns = []string{
	"id", "strategy", "fingerprint", "cache_enabled", "prompt", "model", "source",
	"phase", "percent", "chunk_index", "message", "error_kind", "error_message",
	"result", "created_at", "updated_at", "finished_at",
}

type jobRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{drv: db.Driver, log: log}
}

func (r *jobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *jobRepo) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, common.NewAppError("DB_ERROR", "exec", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *jobRepo) Create(ctx context.Context, job *entity.Job) error {
	query, args := r.builder().
		Insert(jobsTable).
		Columns(jobColumns...).
		Values(
			job.ID, string(job.Strategy), job.Fingerprint, boolInt(job.CacheEnabled), job.Prompt, job.Model, job.Source,
			string(job.Phase), job.Percent, job.ChunkIndex, job.Message, job.ErrorKind, job.ErrorMessage,
			nullString(job.Result), job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(), nullMillis(job.FinishedAt),
		).
		Query()
	if _, err := r.exec(ctx, query, args); err != nil {
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return err
	}
	r.log.Debug("job created", "job_id", job.ID, "strategy", job.Strategy)
	return nil
}

func (r *jobRepo) SaveProgress(ctx context.Context, rep progress.Report) error {
	query, args := r.builder().
		Update(jobsTable).
		Set("phase", string(rep.Phase)).
		Set("percent", rep.Percent).
		Set("chunk_index", rep.ChunkIndex).
		Set("message", rep.Message).
		Set("updated_at", time.Now().UTC().UnixMilli()).
		Where(entsql.EQ("id", rep.JobID)).
		Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NewAppError("JOB_NOT_FOUND", rep.JobID, common.ErrNotFound)
	}
	return nil
}

func (r *jobRepo) Finish(ctx context.Context, rep progress.Report, out Outcome) error {
	now := time.Now().UTC().UnixMilli()
	query, args := r.builder().
		Update(jobsTable).
		Set("phase", string(rep.Phase)).
		Set("percent", rep.Percent).
		Set("chunk_index", rep.ChunkIndex).
		Set("message", rep.Message).
		Set("error_kind", out.ErrorKind).
		Set("error_message", out.ErrorMessage).
		Set("result", nullString(out.Result)).
		Set("updated_at", now).
		Set("finished_at", now).
		Where(entsql.EQ("id", rep.JobID)).
		Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		r.log.Error("job finish failed", "job_id", rep.JobID, "err", err)
		return err
	}
	if n == 0 {
		return common.NewAppError("JOB_NOT_FOUND", rep.JobID, common.ErrNotFound)
	}
	r.log.Info("job finished", "job_id", rep.JobID, "phase", rep.Phase)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id string) (*entity.Job, error) {
	query, args := r.builder().
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NewAppError("JOB_NOT_FOUND", id, common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	sel := r.builder().
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	return r.query(ctx, query, args)
}

func (r *jobRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) ([]string, error) {
	cutoff := before.UTC().UnixMilli()
	pred := entsql.And(
		entsql.In("phase", anySlice(constants.TerminalPhases())...),
		entsql.NotNull("finished_at"),
		entsql.LT("finished_at", cutoff),
	)

	query, args := r.builder().Select("id").From(entsql.Table(jobsTable)).Where(pred).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "select expired jobs", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	query, args = r.builder().Delete(jobsTable).Where(entsql.In("id", anySlice(ids)...)).Query()
	if _, err := r.exec(ctx, query, args); err != nil {
		return nil, err
	}
	r.log.Info("expired jobs deleted", "count", len(ids))
	return ids, nil
}

func (r *jobRepo) query(ctx context.Context, query string, args []any) ([]*entity.Job, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "query jobs", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		var (
			j                entity.Job
			strategy, phase  string
			cacheEnabled     int64
			result           stdsql.NullString
			created, updated int64
			finished         stdsql.NullInt64
		)
		if err := rows.Scan(
			&j.ID, &strategy, &j.Fingerprint, &cacheEnabled, &j.Prompt, &j.Model, &j.Source,
			&phase, &j.Percent, &j.ChunkIndex, &j.Message, &j.ErrorKind, &j.ErrorMessage,
			&result, &created, &updated, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Strategy = constants.StrategyID(strategy)
		j.Phase = constants.Phase(phase)
		j.CacheEnabled = cacheEnabled != 0
		if result.Valid {
			s := result.String
			j.Result = &s
		}
		j.CreatedAt = time.UnixMilli(created).UTC()
		j.UpdatedAt = time.UnixMilli(updated).UTC()
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			j.FinishedAt = &t
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
