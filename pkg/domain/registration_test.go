package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "garagedata/pkg/domain-errors"
)

// Registrations are the sole key for cache, blacklist and limiter bookkeeping,
// so every spelling of the same plate must collapse to one value.
func TestParseRegistration_Normalization(t *testing.T) {
	variants := []string{"AB12 CDE", "ab12cde", "AB12CDE", " ab12 cde\t", "Ab12 cDe"}
	for _, v := range variants {
		t.Run(v, func(t *testing.T) {
			reg, err := ParseRegistration(v)
			require.NoError(t, err)
			assert.Equal(t, Registration("AB12CDE"), reg)
		})
	}
}

func TestParseRegistration_Invariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too long", "ABCDEFGHIJKLM"},
		{"punctuation", "AB12-CDE"},
		{"non ascii", "AB12CDÉ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistration(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestRegistration_Redacted(t *testing.T) {
	assert.Equal(t, "****CDE", Registration("AB12CDE").Redacted())
	assert.Equal(t, "***", Registration("AB1").Redacted())
	assert.Equal(t, "***", Registration("").Redacted())
}
