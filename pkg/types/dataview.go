package types

type QueryKind string

const QueryKindStream QueryKind = "Stream"

type Query struct {
	Id    string    `json:"Id"`
	Value string    `json:"Value"`
	Kind  QueryKind `json:"Kind,omitempty"`
}

// FieldSet holds the fields resolved for one query of a view.
type FieldSet struct {
	QueryId          string  `json:"QueryId"`
	IdentifyingField *Field  `json:"IdentifyingField,omitempty"`
	DataFields       []Field `json:"DataFields"`
}

func (fs FieldSet) Clone() FieldSet {
	if fs.IdentifyingField != nil {
		id := fs.IdentifyingField.Clone()
		fs.IdentifyingField = &id
	}
	fields := make([]Field, len(fs.DataFields))
	for i, f := range fs.DataFields {
		fields[i] = f.Clone()
	}
	fs.DataFields = fields
	return fs
}

type IndexField struct {
	Label string `json:"Label"`
}

type DataView struct {
	Id                string     `json:"Id"`
	Name              string     `json:"Name,omitempty"`
	Description       string     `json:"Description,omitempty"`
	Queries           []Query    `json:"Queries"`
	DataFieldSets     []FieldSet `json:"DataFieldSets"`
	GroupingFields    []Field    `json:"GroupingFields"`
	IndexField        IndexField `json:"IndexField"`
	IndexTypeCode     string     `json:"IndexTypeCode,omitempty"`
	DefaultStartIndex string     `json:"DefaultStartIndex,omitempty"`
	DefaultEndIndex   string     `json:"DefaultEndIndex,omitempty"`
	DefaultInterval   string     `json:"DefaultInterval,omitempty"`
	Shape             string     `json:"Shape,omitempty"`
}

const DefaultIndexLabel = "Timestamp"

func NewDataView(id, name, description string) *DataView {
	return &DataView{
		Id:             id,
		Name:           name,
		Description:    description,
		Queries:        []Query{},
		DataFieldSets:  []FieldSet{},
		GroupingFields: []Field{},
		IndexField:     IndexField{Label: DefaultIndexLabel},
		IndexTypeCode:  "DateTime",
		Shape:          "Standard",
	}
}

func (v *DataView) Clone() *DataView {
	if v == nil {
		return nil
	}
	c := *v
	c.Queries = append([]Query{}, v.Queries...)
	c.DataFieldSets = make([]FieldSet, len(v.DataFieldSets))
	for i, fs := range v.DataFieldSets {
		c.DataFieldSets[i] = fs.Clone()
	}
	c.GroupingFields = make([]Field, len(v.GroupingFields))
	for i, f := range v.GroupingFields {
		c.GroupingFields[i] = f.Clone()
	}
	return &c
}

func (v *DataView) Query(id string) (*Query, bool) {
	for i := range v.Queries {
		if v.Queries[i].Id == id {
			return &v.Queries[i], true
		}
	}
	return nil, false
}

// FieldCount is the number of data fields across all field sets.
func (v *DataView) FieldCount() int {
	n := 0
	for _, fs := range v.DataFieldSets {
		n += len(fs.DataFields)
	}
	return n
}
