package types

import "slices"

type FieldSource string

const (
	FieldSourceNotApplied   FieldSource = "NotApplied"
	FieldSourceId           FieldSource = "Id"
	FieldSourceName         FieldSource = "Name"
	FieldSourcePropertyId   FieldSource = "PropertyId"
	FieldSourcePropertyName FieldSource = "PropertyName"
	FieldSourceMetadata     FieldSource = "Metadata"
	FieldSourceTags         FieldSource = "Tags"
)

type SummaryDirection string

const (
	SummaryDirectionForward  SummaryDirection = "Forward"
	SummaryDirectionBackward SummaryDirection = "Backward"
)

type SummaryType string

const (
	SummaryTypeCount             SummaryType = "Count"
	SummaryTypeMinimum           SummaryType = "Minimum"
	SummaryTypeMaximum           SummaryType = "Maximum"
	SummaryTypeRange             SummaryType = "Range"
	SummaryTypeMean              SummaryType = "Mean"
	SummaryTypeStandardDeviation SummaryType = "StandardDeviation"
	SummaryTypeTotal             SummaryType = "Total"
)

var summaryTypes = []SummaryType{
	SummaryTypeCount,
	SummaryTypeMinimum,
	SummaryTypeMaximum,
	SummaryTypeRange,
	SummaryTypeMean,
	SummaryTypeStandardDeviation,
	SummaryTypeTotal,
}

// ParseSummaryType looks a summary type up by its wire name.
func ParseSummaryType(name string) (SummaryType, bool) {
	for _, st := range summaryTypes {
		if string(st) == name {
			return st, true
		}
	}
	return "", false
}

// Field describes one selectable or derived column of a data view.
type Field struct {
	Source           FieldSource      `json:"Source"`
	Keys             []string         `json:"Keys"`
	Label            string           `json:"Label,omitempty"`
	IncludeUom       bool             `json:"IncludeUom,omitempty"`
	SummaryType      SummaryType      `json:"SummaryType,omitempty"`
	SummaryDirection SummaryDirection `json:"SummaryDirection,omitempty"`
}

// Summary is a requested summary column for a base field.
type Summary struct {
	Direction SummaryDirection `json:"direction"`
	Type      SummaryType      `json:"type"`
}

// Clone returns an independent copy, the key slice is not shared.
func (f Field) Clone() Field {
	f.Keys = slices.Clone(f.Keys)
	if f.Keys == nil {
		f.Keys = []string{}
	}
	return f
}

func (f *Field) HasKey(key string) bool {
	return slices.Contains(f.Keys, key)
}

func (f *Field) FirstKey() string {
	if len(f.Keys) == 0 {
		return ""
	}
	return f.Keys[0]
}

func (f *Field) IsSummary() bool {
	return f.SummaryType != ""
}

// SameSlot reports whether two fields address the same column: equal source
// and overlapping keys. Two key-less fields of the same source overlap.
func (f *Field) SameSlot(other *Field) bool {
	if f.Source != other.Source {
		return false
	}
	if len(f.Keys) == 0 && len(other.Keys) == 0 {
		return true
	}
	for _, k := range f.Keys {
		if other.HasKey(k) {
			return true
		}
	}
	return false
}

// Identical is structural equality on (source, keys) plus the summary settings
// that make a derived column distinct.
func (f *Field) Identical(other *Field) bool {
	return f.Source == other.Source &&
		slices.Equal(f.Keys, other.Keys) &&
		f.SummaryType == other.SummaryType &&
		f.SummaryDirection == other.SummaryDirection
}
