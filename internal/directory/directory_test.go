package directory

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchByPartialName(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow("a1", "García Laura").
		AddRow("a2", "García Martín").
		AddRow("a3", "Garmendia Pablo")
	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("org-1", "garcia").
		WillReturnRows(rows)

	d := NewPostgresDirectory(db)
	got, err := d.SearchByPartialName(context.Background(), "garcia", "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// Substring hits must survive ranking.
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "García Laura")
	assert.Contains(t, names, "García Martín")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchByPartialNameEmptyInput(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := NewPostgresDirectory(db)
	got, err := d.SearchByPartialName(context.Background(), "   ", "org-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRank(t *testing.T) {
	candidates := []Candidate{
		{ID: "1", Name: "Rodriguez Ana"},
		{ID: "2", Name: "Rodrigo Luis"},
		{ID: "3", Name: "Perez Juan"},
	}

	ranked := Rank("rodriguez", candidates)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "Rodriguez Ana", ranked[0].Name)
	for _, c := range ranked {
		assert.NotEqual(t, "Perez Juan", c.Name, "unrelated name should be filtered out")
	}
}

func TestRankCapsResults(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, Candidate{ID: string(rune('a' + i)), Name: "Gomez"})
	}
	ranked := Rank("gomez", candidates)
	assert.Len(t, ranked, maxResults)
}

func TestRankEmpty(t *testing.T) {
	assert.Nil(t, Rank("x", nil))
}
