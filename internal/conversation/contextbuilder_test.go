package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCorrection(t *testing.T) {
	c, ok := DetectCorrection("cirujano Rodriguez")
	require.True(t, ok)
	assert.Equal(t, FieldSurgeon, c.Field)
	assert.Equal(t, "Rodriguez", c.Value)

	c, ok = DetectCorrection("fecha 08/08 14hs")
	require.True(t, ok)
	assert.Equal(t, FieldDateTime, c.Field)
	assert.Equal(t, "08/08 14hs", c.Value)

	c, ok = DetectCorrection("lugar Hospital Italiano")
	require.True(t, ok)
	assert.Equal(t, FieldLocation, c.Field)
	assert.Equal(t, "Hospital Italiano", c.Value)
}

func TestDetectCorrectionRejectsKeywordOnly(t *testing.T) {
	_, ok := DetectCorrection("cirujano")
	assert.False(t, ok)

	_, ok = DetectCorrection("mañana a las 14")
	assert.False(t, ok)

	_, ok = DetectCorrection("")
	assert.False(t, ok)
}

func TestDetectCorrectionIgnoresLooseSynonyms(t *testing.T) {
	// Answers that happen to open with a field synonym are plain
	// answers, not corrections.
	for _, input := range []string{"hospital italiano", "Doctora García", "clinica santa rosa"} {
		_, ok := DetectCorrection(input)
		assert.False(t, ok, "input %q", input)
	}

	c, ok := DetectCorrection("horario 14:30")
	require.True(t, ok)
	assert.Equal(t, FieldDateTime, c.Field)
	assert.Equal(t, "14:30", c.Value)
}

func TestClassifyMode(t *testing.T) {
	st := NewRecordState("conv-1", "org-1", refDate)
	assert.Equal(t, ModeNewCase, ClassifyMode(st))

	st.Location = "Italiano"
	assert.Equal(t, ModeFillMissing, ClassifyMode(st))
}

func TestBuildExtractionRequestCarriesKnownSlots(t *testing.T) {
	st := NewRecordState("conv-1", "org-1", refDate)
	st.Location = "Hospital Italiano"
	st.Quantity = 2
	st.Partial = PartialDateTime{Hour: intPtr(14)}

	req := BuildExtractionRequest(ModeFillMissing, "la hace García", refDate, st, "")

	assert.Equal(t, ModeFillMissing, req.Mode)
	assert.Equal(t, "la hace García", req.Text)
	assert.Equal(t, refDate, req.ReferenceDate)
	assert.Equal(t, "Hospital Italiano", req.Known[keyLocation])
	assert.Equal(t, "2", req.Known[keyQuantity])
	assert.Equal(t, "14", req.Known[keyHour])
	assert.NotContains(t, req.Known, keySurgeon)
}

func TestBuildExtractionRequestNormalizeField(t *testing.T) {
	st := NewRecordState("conv-1", "org-1", refDate)
	req := BuildExtractionRequest(ModeNormalizeField, "el doctor garcía lopez de la clínica", refDate, st, FieldSurgeon)

	assert.Equal(t, ModeNormalizeField, req.Mode)
	assert.Equal(t, FieldSurgeon, req.Field)
}
