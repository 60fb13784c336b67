package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/entity"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

type memoryJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
}

// NewMemoryJobRepository keeps jobs in process memory; used by one-shot runs and tests.
func NewMemoryJobRepository() JobRepository {
	return &memoryJobRepo{jobs: make(map[string]*entity.Job)}
}

func (m *memoryJobRepo) Create(_ context.Context, job *entity.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return common.NewAppError("JOB_EXISTS", job.ID, common.ErrInvalidInput)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryJobRepo) SaveProgress(_ context.Context, r progress.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[r.JobID]
	if !ok {
		return common.NewAppError("JOB_NOT_FOUND", r.JobID, common.ErrNotFound)
	}
	j.Phase, j.Percent, j.ChunkIndex, j.Message = r.Phase, r.Percent, r.ChunkIndex, r.Message
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryJobRepo) Finish(_ context.Context, r progress.Report, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[r.JobID]
	if !ok {
		return common.NewAppError("JOB_NOT_FOUND", r.JobID, common.ErrNotFound)
	}
	now := time.Now().UTC()
	j.Phase, j.Percent, j.ChunkIndex, j.Message = r.Phase, r.Percent, r.ChunkIndex, r.Message
	j.ErrorKind, j.ErrorMessage = out.ErrorKind, out.ErrorMessage
	if out.Result != nil {
		s := *out.Result
		j.Result = &s
	}
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

func (m *memoryJobRepo) Get(_ context.Context, id string) (*entity.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, common.NewAppError("JOB_NOT_FOUND", id, common.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *memoryJobRepo) List(_ context.Context, limit int) ([]*entity.Job, error) {
	m.mu.RLock()
	out := make([]*entity.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryJobRepo) DeleteFinishedBefore(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if j.Finished() && j.FinishedAt != nil && j.FinishedAt.Before(before) {
			ids = append(ids, id)
			delete(m.jobs, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
