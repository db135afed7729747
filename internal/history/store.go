// Package history keeps the evidence artifacts produced by the MCP
// server so they can be retrieved by run ID.
package history

import (
	"fmt"
	"time"

	"github.com/deixis/evidence/internal/classify"
	"github.com/deixis/evidence/internal/record"
	"github.com/google/uuid"
)

// Kind identifies what produced an entry.
type Kind string

const (
	// Probe is a probe-only record.
	Probe Kind = "probe"
	// Write is a record built from captured output.
	Write Kind = "write"
	// Classify is a classifier verdict.
	Classify Kind = "classify"
)

// Store persists and retrieves history entries.
type Store interface {
	Save(entry *Entry) error
	Load(runID string) (*Entry, error)
}

// Lister is a Store that can enumerate its entries, newest first.
type Lister interface {
	List() ([]*Entry, error)
}

// Entry is one produced artifact. Exactly one of Record and
// Classification is set, depending on Kind.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"` // where the artifact was written
	CreatedAt time.Time `json:"created_at"`

	Record         *record.Record           `json:"record,omitempty"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// NewRecordEntry wraps an evidence record written to path.
func NewRecordEntry(kind Kind, path string, r *record.Record) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Path:      path,
		CreatedAt: time.Now().UTC(),
		Record:    r,
	}
}

// NewClassifyEntry wraps a classifier verdict written to path.
func NewClassifyEntry(path string, c *classify.Classification) *Entry {
	return &Entry{
		ID:             uuid.New().String(),
		Kind:           Classify,
		Path:           path,
		CreatedAt:      time.Now().UTC(),
		Classification: c,
	}
}

// Payload returns the artifact carried by the entry.
func (e *Entry) Payload() any {
	if e.Kind == Classify {
		return e.Classification
	}
	return e.Record
}

// Expect returns an error if the entry's Kind does not match want.
func (e *Entry) Expect(want Kind) error {
	if e.Kind != want {
		return fmt.Errorf("run %s is a %s run, not a %s run", e.ID, e.Kind, want)
	}
	return nil
}
