package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReader struct {
	table    types.Table
	err      error
	interval time.Duration
}

func (r *staticReader) GetInterpolatedData(_ context.Context, _, _ string, _, _ time.Time, interval time.Duration) (types.Table, error) {
	r.interval = interval
	return r.table, r.err
}

func window() Window {
	end := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return Window{Start: end.Add(-time.Hour), End: end, Interval: 20 * time.Minute}
}

func TestVerifyNonEmpty(t *testing.T) {
	reader := &staticReader{table: types.Table{{"Timestamp": "x"}}}
	v := NewVerifier(reader, "ns")
	w := window()

	ok, err := v.VerifyNonEmpty(context.Background(), "view", w.Start, w.End, w.Interval)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20*time.Minute, reader.interval)

	reader.table = nil
	ok, err = v.VerifyNonEmpty(context.Background(), "view", w.Start, w.End, w.Interval)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyEmptyIsError(t *testing.T) {
	v := NewVerifier(&staticReader{}, "ns")
	_, err := v.Verify(context.Background(), "view", window())
	assert.ErrorIs(t, err, types.ErrEmptyResult)
}

func TestVerifyStoreError(t *testing.T) {
	storeErr := types.RemoteStoreError{Op: "data", StatusCode: 500}
	v := NewVerifier(&staticReader{err: storeErr}, "ns")
	_, err := v.Verify(context.Background(), "view", window())
	var rse types.RemoteStoreError
	assert.ErrorAs(t, err, &rse)

	_, err = v.VerifyNonEmpty(context.Background(), "view", time.Now(), time.Now(), time.Minute)
	assert.ErrorAs(t, err, &rse)
}

func TestMinRowsPolicy(t *testing.T) {
	reader := &staticReader{table: types.Table{{}, {}}}
	v := NewVerifier(reader, "ns")
	v.Policy = MinRows(3)
	table, err := v.Verify(context.Background(), "view", window())
	assert.True(t, errors.Is(err, types.ErrEmptyResult))
	assert.Len(t, table, 2)

	reader.table = append(reader.table, types.Row{})
	_, err = v.Verify(context.Background(), "view", window())
	assert.NoError(t, err)
}
