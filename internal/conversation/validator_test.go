package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"2", 2},
		{"100", 100},
		{"1", 1},
		{"dos", 2},
		{"una", 1},
		{"diez", 10},
		{"2 CERS", 2},
		{"son 3", 3},
	}
	for _, tc := range cases {
		got, err := ParseQuantity(tc.input)
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
	}

	// Out-of-range numbers are rejected whole, never truncated to a
	// leading prefix that happens to fit the range.
	for _, input := range []string{"0", "101", "999", "1000", "10000", "muchas", ""} {
		_, err := ParseQuantity(input)
		assert.ErrorIs(t, err, ErrQuantityRange, "input %q", input)
	}
}

func TestParseYesNo(t *testing.T) {
	for _, input := range []string{"sí", "si", "Sí", "dale", "ok", "confirmo", "CONFIRMAR", "claro"} {
		yes, ok := ParseYesNo(input)
		require.True(t, ok, "input %q", input)
		assert.True(t, yes, "input %q", input)
	}

	for _, input := range []string{"no", "nop", "cambiar", "corregir", "mal"} {
		yes, ok := ParseYesNo(input)
		require.True(t, ok, "input %q", input)
		assert.False(t, yes, "input %q", input)
	}

	_, ok := ParseYesNo("quizás")
	assert.False(t, ok)
}

func TestIsNoneToken(t *testing.T) {
	for _, input := range []string{"no", "nadie", "ninguno", "Ninguna", "sin anestesiólogo", "sin anestesista"} {
		assert.True(t, IsNoneToken(input), "input %q", input)
	}
	assert.False(t, IsNoneToken("García"))
}

func TestParseChoiceIndex(t *testing.T) {
	idx, err := ParseChoiceIndex("2", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = ParseChoiceIndex("el 1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = ParseChoiceIndex("4", 3)
	assert.Error(t, err)
	_, err = ParseChoiceIndex("0", 3)
	assert.Error(t, err)
	_, err = ParseChoiceIndex("primero", 3)
	assert.Error(t, err)
}

func TestIsAppropriate(t *testing.T) {
	cases := []struct {
		pending PendingField
		input   string
		want    bool
	}{
		{PendingDateTime, "08/08", true},
		{PendingDateTime, "mañana", true},
		{PendingDateTime, "14hs", true},
		{PendingDateTime, "perro verde", false},
		{PendingDateTime, "ni idea.", false},
		{PendingDateTime, "ya te aviso - gracias", false},
		{PendingDateTime, "pasado mañana", true},
		{PendingQuantity, "3", true},
		{PendingQuantity, "tres", true},
		{PendingQuantity, "un montón", true},
		{PendingQuantity, "bastantes", false},
		{PendingLocation, "Hospital Italiano", true},
		{PendingLocation, "hola", false},
		{PendingSurgeon, "García", true},
		{PendingSurgeon, "gato", false},
		{PendingAnesthesiologist, "ninguno", true},
		{PendingAskAnesthesiologist, "si", true},
		{PendingAskAnesthesiologist, "banana", false},
		{PendingSelectCandidate, "2", true},
		{PendingSelectCandidate, "ese", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsAppropriate(tc.pending, tc.input),
			"pending %q input %q", tc.pending, tc.input)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"garcía", "García"},
		{"hospital italiano", "Hospital Italiano"},
		{"clinica de la merced", "Clinica de la Merced"},
		{"CERS", "CERS"},
		{"juan DEL campo", "Juan del Campo"},
		{"  rodriguez  ", "Rodriguez"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeName(tc.input), "input %q", tc.input)
	}
}

func TestValidateFreeText(t *testing.T) {
	assert.NoError(t, ValidateFreeText("ok"))
	assert.ErrorIs(t, ValidateFreeText("a"), ErrTextTooShort)
	assert.ErrorIs(t, ValidateFreeText("  "), ErrTextTooShort)
}
