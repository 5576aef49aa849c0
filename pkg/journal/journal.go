// Package journal records what every tutorial step did, so a run can be
// inspected after the sample objects are gone.
package journal

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/matst80/dataview-sample/pkg/types"
)

type Entry struct {
	RunId     string          `json:"runId"`
	Step      int             `json:"step"`
	Title     string          `json:"title"`
	Namespace string          `json:"namespace"`
	ViewId    string          `json:"viewId,omitempty"`
	View      *types.DataView `json:"view,omitempty"`
	Rows      int             `json:"rows"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.View != nil {
		entry.View = entry.View.Clone()
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Multi records to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
