// Package resolver looks fields and field sets up inside a data view
// definition. Every lookup reports absence through its second return value
// and never fails; callers check it before touching the result.
package resolver

import (
	"strings"

	"github.com/matst80/dataview-sample/pkg/types"
)

// FindFieldBySource returns the first field with the given source.
func FindFieldBySource(fields []types.Field, source types.FieldSource) (*types.Field, bool) {
	for i := range fields {
		if fields[i].Source == source {
			return &fields[i], true
		}
	}
	return nil, false
}

func FindFieldSetByQuery(fieldSets []types.FieldSet, queryID string) (*types.FieldSet, bool) {
	for i := range fieldSets {
		if fieldSets[i].QueryId == queryID {
			return &fieldSets[i], true
		}
	}
	return nil, false
}

// FindFieldByKey returns the first field of the given source having a key that
// contains keySubstring. This is a substring match, so "pressure" also hits a
// "pressure2" field listed earlier.
func FindFieldByKey(fields []types.Field, source types.FieldSource, keySubstring string) (*types.Field, bool) {
	i := IndexOfFieldByKey(fields, source, keySubstring)
	if i < 0 {
		return nil, false
	}
	return &fields[i], true
}

// IndexOfFieldByKey is FindFieldByKey returning the position, -1 when absent.
func IndexOfFieldByKey(fields []types.Field, source types.FieldSource, keySubstring string) int {
	for i, f := range fields {
		if f.Source != source {
			continue
		}
		for _, k := range f.Keys {
			if strings.Contains(k, keySubstring) {
				return i
			}
		}
	}
	return -1
}
