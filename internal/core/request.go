package core

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/joseph-ayodele/ocr-enricher/constants"
)

// JobRequest is immutable once a job starts. Empty Prompt or Model means absent.
type JobRequest struct {
	Document     []byte
	Strategy     constants.StrategyID
	Fingerprint  string
	CacheEnabled bool
	Prompt       string
	Model        string
}

// Fingerprint is the cache key for a document: hex sha256 of its bytes.
func Fingerprint(document []byte) string {
	sum := sha256.Sum256(document)
	return hex.EncodeToString(sum[:])
}
