package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastFour(t *testing.T) {
	assert.Equal(t, "6789", LastFour("123456789"))
	assert.Equal(t, "6789", LastFour(" 123-45-6789 "))
	assert.Equal(t, "12", LastFour("12"))
	assert.Equal(t, "", LastFour(""))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "live_****cdef", MaskSecret("live_0123456789abcdef"))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestStripPIIRemovesNestedIdentity(t *testing.T) {
	in := map[string]any{
		"total_income": 91000,
		"employment_history": []any{
			map[string]any{"employer_name": "Acme", "ssn": "123456789", "wages": 50000},
		},
		"First_Name": "Jane",
	}
	out := StripPII(in).(map[string]any)

	assert.NotContains(t, out, "First_Name")
	history := out["employment_history"].([]any)
	entry := history[0].(map[string]any)
	assert.NotContains(t, entry, "ssn")
	assert.Equal(t, "Acme", entry["employer_name"])
	assert.Contains(t, in["employment_history"].([]any)[0].(map[string]any), "ssn")
}
