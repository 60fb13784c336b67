package entity

import (
	"time"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// Job represents an enrichment job for data transfer between layers.
type Job struct {
	ID           string               `json:"id"`
	Strategy     constants.StrategyID `json:"strategy"`
	Fingerprint  string               `json:"fingerprint"`
	CacheEnabled bool                 `json:"cache_enabled"`
	Prompt       string               `json:"prompt,omitempty"`
	Model        string               `json:"model,omitempty"`
	Source       string               `json:"source,omitempty"`
	Phase        constants.Phase      `json:"phase"`
	Percent      int                  `json:"percent"`
	ChunkIndex   int                  `json:"chunk_index,omitempty"`
	Message      string               `json:"message"`
	ErrorKind    string               `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Result       *string              `json:"result,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}

// Finished reports whether the job reached DONE or FAILED.
func (j *Job) Finished() bool { return j.Phase.Terminal() }
