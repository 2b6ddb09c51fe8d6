package entity

import (
	"fmt"
	"strconv"
	"time"
)

// FieldType tags the scalar shape of an extracted field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

// FieldValue is a tagged scalar. Provider output shape varies by document
// kind and version, so extracted fields stay a map, but each value carries
// its type instead of being raw JSON.
type FieldValue struct {
	Type   FieldType `json:"type"`
	String string    `json:"string,omitempty"`
	Number float64   `json:"number,omitempty"`
	Date   string    `json:"date,omitempty"` // YYYY-MM-DD
}

func StringField(s string) FieldValue {
	return FieldValue{Type: FieldString, String: s}
}

func NumberField(n float64) FieldValue {
	return FieldValue{Type: FieldNumber, Number: n}
}

func DateField(t time.Time) FieldValue {
	return FieldValue{Type: FieldDate, Date: t.Format("2006-01-02")}
}

// Text renders the value for display regardless of its tag.
func (v FieldValue) Text() string {
	switch v.Type {
	case FieldNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case FieldDate:
		return v.Date
	default:
		return v.String
	}
}

// Validate checks internal consistency of the tagged value.
func (v FieldValue) Validate() error {
	switch v.Type {
	case FieldString, FieldNumber:
		return nil
	case FieldDate:
		if _, err := time.Parse("2006-01-02", v.Date); err != nil {
			return fmt.Errorf("invalid date field %q: %w", v.Date, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown field type %q", v.Type)
	}
}
