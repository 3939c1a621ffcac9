package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apichafoko/RegistroCirugias-sub001/internal/directory"
)

func TestResolveCandidates(t *testing.T) {
	none := ResolveCandidates(nil)
	assert.Equal(t, DisambiguationNone, none.Kind)

	one := ResolveCandidates([]directory.Candidate{{ID: "1", Name: "García"}})
	assert.Equal(t, DisambiguationOne, one.Kind)
	assert.Equal(t, "García", one.Match.Name)

	many := ResolveCandidates([]directory.Candidate{
		{ID: "1", Name: "García"},
		{ID: "2", Name: "García Lopez"},
	})
	assert.Equal(t, DisambiguationMany, many.Kind)
	assert.Len(t, many.Candidates, 2)
}
