package resolver

import (
	"testing"

	"github.com/matst80/dataview-sample/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() []types.Field {
	return []types.Field{
		{Source: types.FieldSourceId},
		{Source: types.FieldSourcePropertyId, Keys: []string{"pressure"}},
		{Source: types.FieldSourcePropertyId, Keys: []string{"temperature"}},
		{Source: types.FieldSourcePropertyId, Keys: []string{"ambient_temp"}},
	}
}

func TestFindFieldBySource(t *testing.T) {
	fields := sampleFields()
	f, ok := FindFieldBySource(fields, types.FieldSourcePropertyId)
	require.True(t, ok)
	assert.Equal(t, []string{"pressure"}, f.Keys)

	_, ok = FindFieldBySource(fields, types.FieldSourceTags)
	assert.False(t, ok)
}

func TestFindFieldBySourceReturnsSliceElement(t *testing.T) {
	fields := sampleFields()
	f, ok := FindFieldBySource(fields, types.FieldSourceId)
	require.True(t, ok)
	f.Label = "changed"
	assert.Equal(t, "changed", fields[0].Label)
}

func TestFindFieldSetByQuery(t *testing.T) {
	sets := []types.FieldSet{{QueryId: "a"}, {QueryId: "stream"}}
	fs, ok := FindFieldSetByQuery(sets, "stream")
	require.True(t, ok)
	assert.Equal(t, "stream", fs.QueryId)

	_, ok = FindFieldSetByQuery(sets, "missing")
	assert.False(t, ok)

	_, ok = FindFieldSetByQuery(nil, "stream")
	assert.False(t, ok)
}

func TestFindFieldByKeySubstring(t *testing.T) {
	fields := sampleFields()
	f, ok := FindFieldByKey(fields, types.FieldSourcePropertyId, "temp")
	require.True(t, ok)
	assert.Equal(t, []string{"temperature"}, f.Keys)

	f, ok = FindFieldByKey(fields, types.FieldSourcePropertyId, "ambient")
	require.True(t, ok)
	assert.Equal(t, []string{"ambient_temp"}, f.Keys)
}

func TestFindFieldByKeyRequiresSource(t *testing.T) {
	fields := []types.Field{
		{Source: types.FieldSourceName, Keys: []string{"pressure"}},
	}
	_, ok := FindFieldByKey(fields, types.FieldSourcePropertyId, "pressure")
	assert.False(t, ok)
}

// Substring matching returns the first structural match in list order,
// not the exact one. Kept deliberately; see DESIGN.md.
func TestFindFieldByKeyAmbiguousSubstringReturnsFirstListed(t *testing.T) {
	fields := []types.Field{
		{Source: types.FieldSourcePropertyId, Keys: []string{"pressure2"}},
		{Source: types.FieldSourcePropertyId, Keys: []string{"pressure"}},
	}
	f, ok := FindFieldByKey(fields, types.FieldSourcePropertyId, "pressure")
	require.True(t, ok)
	assert.Equal(t, []string{"pressure2"}, f.Keys)

	fields[0], fields[1] = fields[1], fields[0]
	f, ok = FindFieldByKey(fields, types.FieldSourcePropertyId, "pressure")
	require.True(t, ok)
	assert.Equal(t, []string{"pressure"}, f.Keys)
}

func TestFindFieldByKeyMatchesAnyKey(t *testing.T) {
	fields := []types.Field{
		{Source: types.FieldSourcePropertyId, Keys: []string{"temperature", "ambient_temp"}},
	}
	assert.Equal(t, 0, IndexOfFieldByKey(fields, types.FieldSourcePropertyId, "ambient"))
	assert.Equal(t, -1, IndexOfFieldByKey(fields, types.FieldSourcePropertyId, "pressure"))
}
