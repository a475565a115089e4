package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

const schema = `CREATE TABLE tm_units (
	id INTEGER PRIMARY KEY,
	source_text TEXT NOT NULL,
	target_text TEXT NOT NULL,
	source_locale TEXT NOT NULL,
	target_locale TEXT NOT NULL,
	project TEXT,
	checksum TEXT,
	submitter_email TEXT,
	submitter_name TEXT,
	revision INTEGER NOT NULL
)`

func seed(t *testing.T, revisions ...int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(schema)
	require.NoError(t, err)
	for i, rev := range revisions {
		_, err := db.Exec(`INSERT INTO tm_units VALUES (?, ?, ?, 'en', 'fr', 'editor', ?, ?, NULL, ?)`,
			i+1, fmt.Sprintf("source %d", i+1), fmt.Sprintf("cible %d", i+1),
			fmt.Sprintf("sum%d", i+1), "dev@example.org", rev)
		require.NoError(t, err)
	}
	return path
}

func open(t *testing.T, path string, pageSize int) *Corpus {
	t.Helper()
	cfg := config.Default()
	cfg.Corpus = config.CorpusConfig{Driver: DriverSQLite, Path: path, Table: DefaultTable, PageSize: pageSize}
	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func collect(t *testing.T, c *Corpus, after int64) []tm.TranslationUnit {
	t.Helper()
	var out []tm.TranslationUnit
	for u, err := range c.Units(context.Background(), after) {
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestUnitsPagesAcrossSharedRevisions(t *testing.T) {
	// Revisions repeat across page boundaries so the keyset has to use id.
	c := open(t, seed(t, 1, 2, 2, 2, 3, 5, 5), 2)

	units := collect(t, c, 0)
	require.Len(t, units, 7)
	var ids []string
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, ids)

	first := units[0]
	assert.Equal(t, "source 1", first.SourceText)
	assert.Equal(t, "cible 1", first.TargetText)
	assert.Equal(t, "editor", first.Project)
	assert.Equal(t, "sum1", first.Checksum)
	assert.Equal(t, "dev@example.org", first.SubmitterEmail)
	assert.Empty(t, first.SubmitterName)
	assert.Equal(t, int64(1), first.Revision)
}

func TestUnitsAfterRevision(t *testing.T) {
	c := open(t, seed(t, 1, 2, 2, 3, 5), 1000)
	units := collect(t, c, 2)
	require.Len(t, units, 2)
	assert.Equal(t, int64(3), units[0].Revision)
	assert.Equal(t, int64(5), units[1].Revision)

	assert.Empty(t, collect(t, c, 5))
}

func TestUnitsStopsWhenConsumerBreaks(t *testing.T) {
	c := open(t, seed(t, 1, 2, 3, 4, 5, 6), 2)
	seen := 0
	for _, err := range c.Units(context.Background(), 0) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestUnitsYieldsQueryError(t *testing.T) {
	c := open(t, seed(t, 1), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var errs int
	for _, err := range c.Units(ctx, 0) {
		if err != nil {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestMaxRevision(t *testing.T) {
	c := open(t, seed(t, 4, 9, 2), 10)
	rev, err := c.MaxRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), rev)

	empty := open(t, seed(t), 10)
	rev, err = empty.MaxRevision(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rev)
}

func TestNewRejectsUnsafeTable(t *testing.T) {
	_, err := New(nil, DriverSQLite, "units; DROP TABLE x", 10)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	_, err = New(nil, "oracle", "", 10)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestPostgresPlaceholders(t *testing.T) {
	c, err := New(nil, DriverPostgres, "corpus.tm_units", 0)
	require.NoError(t, err)
	assert.Contains(t, c.nextPage, "revision > $1 OR (revision = $2 AND id > $3)")
	assert.Contains(t, c.nextPage, "LIMIT $4")
	assert.Equal(t, DefaultPageSize, c.pageSize)
}

func TestOpenRequiresPathForSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Corpus.Driver = DriverSQLite
	cfg.Corpus.Path = ""
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}
