package types

type SdsTypeCode int

const (
	SdsTypeCodeEmpty    SdsTypeCode = 0
	SdsTypeCodeObject   SdsTypeCode = 1
	SdsTypeCodeBoolean  SdsTypeCode = 3
	SdsTypeCodeInt32    SdsTypeCode = 9
	SdsTypeCodeInt64    SdsTypeCode = 11
	SdsTypeCodeDouble   SdsTypeCode = 14
	SdsTypeCodeDateTime SdsTypeCode = 16
	SdsTypeCodeString   SdsTypeCode = 18
)

func (c SdsTypeCode) String() string {
	switch c {
	case SdsTypeCodeObject:
		return "Object"
	case SdsTypeCodeBoolean:
		return "Boolean"
	case SdsTypeCodeInt32:
		return "Int32"
	case SdsTypeCodeInt64:
		return "Int64"
	case SdsTypeCodeDouble:
		return "Double"
	case SdsTypeCodeDateTime:
		return "DateTime"
	case SdsTypeCodeString:
		return "String"
	}
	return "Empty"
}

type SdsTypeProperty struct {
	Id      string   `json:"Id"`
	Name    string   `json:"Name,omitempty"`
	IsKey   bool     `json:"IsKey"`
	SdsType *SdsType `json:"SdsType"`
	Uom     string   `json:"Uom,omitempty"`
}

type SdsType struct {
	Id          string            `json:"Id"`
	Name        string            `json:"Name,omitempty"`
	Description string            `json:"Description,omitempty"`
	SdsTypeCode SdsTypeCode       `json:"SdsTypeCode"`
	Properties  []SdsTypeProperty `json:"Properties,omitempty"`
}

func NewSdsType(id string, code SdsTypeCode, properties ...SdsTypeProperty) *SdsType {
	return &SdsType{Id: id, Name: id, SdsTypeCode: code, Properties: properties}
}

// KeyProperties returns the index properties of the type.
func (t *SdsType) KeyProperties() []SdsTypeProperty {
	keys := make([]SdsTypeProperty, 0, 1)
	for _, p := range t.Properties {
		if p.IsKey {
			keys = append(keys, p)
		}
	}
	return keys
}

func (t *SdsType) Property(id string) (*SdsTypeProperty, bool) {
	for i := range t.Properties {
		if t.Properties[i].Id == id {
			return &t.Properties[i], true
		}
	}
	return nil, false
}

type SdsStream struct {
	Id          string `json:"Id"`
	Name        string `json:"Name,omitempty"`
	TypeId      string `json:"TypeId"`
	Description string `json:"Description,omitempty"`
}
