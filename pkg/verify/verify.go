// Package verify checks that a data view still produces interpolated output
// after an edit. It is a liveness check, column values are not inspected.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/matst80/dataview-sample/pkg/types"
)

// Policy decides whether a fetched table counts as success.
type Policy func(table types.Table) error

// NonEmpty accepts any table with at least one row.
func NonEmpty(table types.Table) error {
	if len(table) == 0 {
		return types.ErrEmptyResult
	}
	return nil
}

func MinRows(n int) Policy {
	return func(table types.Table) error {
		if len(table) < n {
			return fmt.Errorf("%w: got %d rows, want at least %d", types.ErrEmptyResult, len(table), n)
		}
		return nil
	}
}

type Window struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

type Verifier struct {
	Store     types.DataReader
	Namespace string
	Policy    Policy
}

func NewVerifier(store types.DataReader, namespace string) *Verifier {
	return &Verifier{
		Store:     store,
		Namespace: namespace,
		Policy:    NonEmpty,
	}
}

// Verify fetches the whole window and applies the policy. The table is
// returned even when the policy rejects it.
func (v *Verifier) Verify(ctx context.Context, viewID string, w Window) (types.Table, error) {
	table, err := v.Store.GetInterpolatedData(ctx, v.Namespace, viewID, w.Start, w.End, w.Interval)
	if err != nil {
		return nil, fmt.Errorf("get interpolated data for %s: %w", viewID, err)
	}
	policy := v.Policy
	if policy == nil {
		policy = NonEmpty
	}
	if err := policy(table); err != nil {
		return table, err
	}
	return table, nil
}

// VerifyNonEmpty reports whether the view has rows in the window. Store
// failures are returned as errors, an empty result is false with no error.
func (v *Verifier) VerifyNonEmpty(ctx context.Context, viewID string, start, end time.Time, interval time.Duration) (bool, error) {
	table, err := v.Store.GetInterpolatedData(ctx, v.Namespace, viewID, start, end, interval)
	if err != nil {
		return false, fmt.Errorf("get interpolated data for %s: %w", viewID, err)
	}
	return NonEmpty(table) == nil, nil
}
