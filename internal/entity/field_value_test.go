package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldValueValidate(t *testing.T) {
	tests := []struct {
		name    string
		value   FieldValue
		wantErr bool
	}{
		{"string ok", StringField("ACME"), false},
		{"number ok", NumberField(12.34), false},
		{"date ok", DateField(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)), false},
		{"bad date", FieldValue{Type: FieldDate, Date: "14/03/2026"}, true},
		{"unknown type", FieldValue{Type: "blob"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldValueText(t *testing.T) {
	assert.Equal(t, "ACME", StringField("ACME").Text())
	assert.Equal(t, "12.34", NumberField(12.34).Text())
	assert.Equal(t, "2026-03-14", DateField(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)).Text())
}
