package rmid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  RMID
	}{
		{
			name:  "canonical form",
			input: "RF743916765US-33.001",
			want:  RMID{Base: "RF743916765US", Group: 33, Sub: 1},
		},
		{
			name:  "three digit sub",
			input: "RF743916765US-33.042",
			want:  RMID{Base: "RF743916765US", Group: 33, Sub: 42},
		},
		{
			name:  "max group and sub",
			input: "BASE1-99.999",
			want:  RMID{Base: "BASE1", Group: 99, Sub: 999},
		},
		{
			name:  "legacy form defaults sub to 1",
			input: "RF743916765US-33",
			want:  RMID{Base: "RF743916765US", Group: 33, Sub: 1},
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  AB12-7.003  ",
			want:  RMID{Base: "AB12", Group: 7, Sub: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	inputs := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "RF743916765US"},
		{"empty base", "-33.001"},
		{"empty group", "RF743916765US-"},
		{"two dashes", "RF-7439-33.001"},
		{"base with underscore", "RF_01-33.001"},
		{"group zero", "BASE-0.001"},
		{"group over range", "BASE-100.001"},
		{"group leading zero", "BASE-07.001"},
		{"group not numeric", "BASE-x.001"},
		{"trailing dot", "BASE-33."},
		{"sub zero", "BASE-33.000"},
		{"sub four digits", "BASE-33.0001"},
		{"sub not numeric", "BASE-33.0a1"},
		{"sub negative", "BASE-33.-01"},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "RF743916765US-33.001", Format("RF743916765US", 33, 1))
	assert.Equal(t, "RF743916765US-33.002", Format("RF743916765US", 33, 2))
	assert.Equal(t, "AB-1.999", Format("AB", 1, 999))
}

// Legacy input parses, but output is always the full three-part form.
func TestLegacyFormNeverProduced(t *testing.T) {
	id, err := Parse("BASE-5")
	require.NoError(t, err)
	assert.Equal(t, "BASE-5.001", id.String())
}

// FormatLegacy renders the sub-less form and parses back to the first entry.
func TestFormatLegacyRoundTrip(t *testing.T) {
	legacy := FormatLegacy("RF743916765US", 33)
	assert.Equal(t, "RF743916765US-33", legacy)

	id, err := Parse(legacy)
	require.NoError(t, err)
	assert.Equal(t, RMID{Base: "RF743916765US", Group: 33, Sub: SubMin}, id)
}

func TestParseFormatRoundTrip(t *testing.T) {
	id, err := New("RF743916765US", 33, 2)
	require.NoError(t, err)

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestNew_RangeChecks(t *testing.T) {
	_, err := New("BASE", 0, 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New("BASE", 100, 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New("BASE", 1, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New("BASE", 1, 1000)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New("", 1, 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
