package types

import "time"

type DataItemField struct {
	Id       string      `json:"Id"`
	Name     string      `json:"Name,omitempty"`
	TypeCode SdsTypeCode `json:"TypeCode"`
	IsKey    bool        `json:"IsKey"`
	Uom      string      `json:"Uom,omitempty"`
}

// DataItem is a stream as seen by a data view query.
type DataItem struct {
	Id             string          `json:"Id"`
	Name           string          `json:"Name,omitempty"`
	TypeId         string          `json:"TypeId"`
	ResourceType   string          `json:"ResourceType"`
	Description    string          `json:"Description,omitempty"`
	DataItemFields []DataItemField `json:"DataItemFields"`
}

type ResolvedItems struct {
	TimeOfResolution time.Time  `json:"TimeOfResolution"`
	Items            []DataItem `json:"Items"`
}

type ResolvedFieldSets struct {
	TimeOfResolution time.Time  `json:"TimeOfResolution"`
	Items            []FieldSet `json:"Items"`
}

// Row is one record of interpolated view data keyed by column label.
type Row map[string]any

type Table []Row

// Columns returns the union of column labels in first-seen order.
func (t Table) Columns() []string {
	seen := make(map[string]struct{})
	cols := make([]string, 0)
	for _, row := range t {
		for _, c := range sortedKeys(row) {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cols = append(cols, c)
			}
		}
	}
	return cols
}
