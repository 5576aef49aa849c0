// Package teardown runs best-effort cleanup. Ordinary cleanup failures are
// logged and skipped; verification failures are kept and returned together
// with the error that caused the run to fail.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/matst80/dataview-sample/pkg/types"
)

type Action struct {
	Name string
	Run  func(ctx context.Context) error
	// Verify marks an action whose failure must be reported to the caller.
	Verify bool
}

// Suppress runs fn, logs a failure and returns it for the report.
func Suppress(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		log.Printf("Encountered Error: %s: %v", name, err)
	}
	return err
}

type Outcome struct {
	Name string
	Err  error
}

type Report struct {
	Outcomes []Outcome
}

func (r Report) Attempted() []string {
	names := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		names[i] = o.Name
	}
	return names
}

func (r Report) Failed() []Outcome {
	failed := make([]Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

type Sequencer struct {
	actions []Action
}

func NewSequencer(actions ...Action) *Sequencer {
	return &Sequencer{actions: actions}
}

func (s *Sequencer) Add(actions ...Action) {
	s.actions = append(s.actions, actions...)
}

// Run attempts every action in order. The returned error joins rootErr with
// any verification failures, so a failed run stays failed after cleanup.
func (s *Sequencer) Run(ctx context.Context, rootErr error) (Report, error) {
	report := Report{Outcomes: make([]Outcome, 0, len(s.actions))}
	errs := []error{rootErr}
	for _, a := range s.actions {
		err := Suppress(ctx, a.Name, a.Run)
		report.Outcomes = append(report.Outcomes, Outcome{Name: a.Name, Err: err})
		if err != nil && a.Verify {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

func DeleteView(store types.DataViewStore, namespace, viewID string) Action {
	return Action{
		Name: fmt.Sprintf("delete data view %s", viewID),
		Run: func(ctx context.Context) error {
			return store.DeleteView(ctx, namespace, viewID)
		},
	}
}

// ViewDeleted reads the view back and fails with DeleteFailedError if it is
// still there. Any read error counts as deleted.
func ViewDeleted(store types.DataViewStore, namespace, viewID string) Action {
	return Action{
		Name:   fmt.Sprintf("verify data view %s deleted", viewID),
		Verify: true,
		Run: func(ctx context.Context) error {
			view, err := store.GetView(ctx, namespace, viewID)
			if err != nil || view == nil {
				log.Printf("Verification OK: Data View %s deleted", viewID)
				return nil
			}
			return types.DeleteFailedError{ViewID: viewID}
		},
	}
}

func DeleteStream(store types.StreamStore, namespace, streamID string) Action {
	return Action{
		Name: fmt.Sprintf("delete stream %s", streamID),
		Run: func(ctx context.Context) error {
			return store.DeleteStream(ctx, namespace, streamID)
		},
	}
}

func DeleteType(store types.TypeStore, namespace, typeID string) Action {
	return Action{
		Name: fmt.Sprintf("delete type %s", typeID),
		Run: func(ctx context.Context) error {
			return store.DeleteType(ctx, namespace, typeID)
		},
	}
}
