package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegexNormalizer(t *testing.T) {
	n := RegexNormalizer{}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name untouched", "Corner Cafe", "Corner Cafe"},
		{"store number stripped", "MegaMart #1234", "MegaMart"},
		{"bare store number stripped", "MegaMart 00412", "MegaMart"},
		{"legal suffix stripped", "Acme Supplies LLC", "Acme Supplies"},
		{"inc with dot stripped", "Northwind Traders Inc.", "Northwind Traders"},
		{"whitespace collapsed", "  Two   Spaces  ", "Two Spaces"},
		{"short number kept", "Store 42", "Store 42"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.NormalizeMerchant(tt.in))
		})
	}
}
