package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	first := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	require.NoError(t, s.UpsertUser(200, "zoe", first))
	require.NoError(t, s.UpsertUser(100, "yan", first))
	require.NoError(t, s.UpsertUser(200, "zoe_sg", later))

	user, err := s.GetUser(200)
	require.NoError(t, err)
	assert.Equal(t, "zoe_sg", user.Username)
	assert.True(t, user.FirstSeen.Equal(first))
	assert.True(t, user.LastSeen.Equal(later))

	users, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(100), users[0].ChatID)

	_, err = s.GetUser(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAllDataChunks(t *testing.T) {
	s := newTestStore(t)
	_, err := s.db.Exec(`INSERT INTO data_chunks (content, embedding_json) VALUES
        ('CPF basics', '[0.1,0.2]'),
        ('broken', 'not-json'),
        ('missing', NULL)`)
	require.NoError(t, err)

	chunks, err := s.GetAllDataChunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []float32{0.1, 0.2}, chunks[0].Embedding)
	assert.Nil(t, chunks[1].Embedding)
	assert.Nil(t, chunks[2].Embedding)
}

func TestCatalogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	dbs := int64(1)
	catalog := &Catalog{
		InsuranceCategories: []InsuranceCategory{{ID: 1, Name: "Life"}},
		InsuranceProducts:   []InsuranceProduct{{ID: 10, CategoryID: 1, Name: "PRULife", Description: "Whole life cover"}},
		Agents:              []Agent{{ID: 1, FirstName: "Mei", LastName: "Tan", YearsOfExperience: 7, Telegram: "meitan"}},
		FinancialCategories: []FinancialCategory{{ID: 1, Name: "Savings"}, {ID: 2, Name: "Bonds"}},
		Banks:               []Bank{{ID: 1, Name: "DBS"}},
		FinancialProducts: []FinancialProduct{
			{ID: 1, CategoryID: 1, BankID: &dbs, Name: "Multiplier"},
			{ID: 2, CategoryID: 2, Name: "Singapore Savings Bonds"},
		},
	}

	require.NoError(t, s.ReplaceCatalog(catalog))
	loaded, err := s.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, catalog, loaded)

	// a second import replaces rather than appends
	require.NoError(t, s.ReplaceCatalog(&Catalog{Banks: []Bank{{ID: 2, Name: "OCBC"}}}))
	loaded, err = s.LoadCatalog()
	require.NoError(t, err)
	assert.Empty(t, loaded.InsuranceProducts)
	assert.Equal(t, []Bank{{ID: 2, Name: "OCBC"}}, loaded.Banks)
}

func TestReplaceCatalog_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ReplaceCatalog(&Catalog{Banks: []Bank{{ID: 1, Name: "DBS"}}}))

	err := s.ReplaceCatalog(&Catalog{Banks: []Bank{{ID: 5, Name: "UOB"}, {ID: 5, Name: "dup"}}})
	require.Error(t, err)

	loaded, err := s.LoadCatalog()
	require.NoError(t, err)
	assert.Equal(t, []Bank{{ID: 1, Name: "DBS"}}, loaded.Banks)
}
