// Package corpus streams translation units out of the database that owns
// them. Units are read lazily in pages ordered by (revision, id), so a
// stream can be resumed from any revision and never holds the whole corpus.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultTable    = "tm_units"
	DefaultPageSize = 1000
)

const columns = "id, source_text, target_text, source_locale, target_locale, project, checksum, submitter_email, submitter_name, revision"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Corpus reads from a table or view exposing the columns above.
type Corpus struct {
	db       *sql.DB
	driver   string
	pageSize int
	close    func() error

	firstPage string
	nextPage  string
	maxRev    string
	logger    *slog.Logger
}

// Open connects to the configured corpus database.
func Open(ctx context.Context, cfg *config.Config) (*Corpus, error) {
	cc := cfg.Corpus
	switch strings.ToLower(cc.Driver) {
	case DriverPostgres, "":
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		c, err := New(db, DriverPostgres, cc.Table, cc.PageSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		c.close = db.Close
		return c, nil
	case DriverSQLite:
		if cc.Path == "" {
			return nil, fmt.Errorf("%w: corpus.path is required for the sqlite driver", apperrors.ErrConfigInvalid)
		}
		db, err := sql.Open("sqlite", cc.Path+"?_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("opening corpus %s: %w", cc.Path, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("opening corpus %s: %w", cc.Path, err)
		}
		c, err := New(db, DriverSQLite, cc.Table, cc.PageSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		c.close = db.Close
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown corpus driver %q", apperrors.ErrConfigInvalid, cc.Driver)
	}
}

// New wraps an open database. driver selects the placeholder style. The
// caller keeps ownership of db.
func New(db *sql.DB, driver, table string, pageSize int) (*Corpus, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("%w: corpus table %q is not a plain identifier", apperrors.ErrConfigInvalid, table)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	ph := func(n int) string { return "?" }
	switch driver {
	case DriverPostgres:
		ph = func(n int) string { return fmt.Sprintf("$%d", n) }
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: unknown corpus driver %q", apperrors.ErrConfigInvalid, driver)
	}

	return &Corpus{
		db:       db,
		driver:   driver,
		pageSize: pageSize,
		close:    func() error { return nil },

		firstPage: fmt.Sprintf("SELECT %s FROM %s WHERE revision > %s ORDER BY revision, id LIMIT %s",
			columns, table, ph(1), ph(2)),
		nextPage: fmt.Sprintf("SELECT %s FROM %s WHERE revision > %s OR (revision = %s AND id > %s) ORDER BY revision, id LIMIT %s",
			columns, table, ph(1), ph(2), ph(3), ph(4)),
		maxRev: fmt.Sprintf("SELECT COALESCE(MAX(revision), 0) FROM %s", table),
		logger: slog.Default().With("component", "corpus", "driver", driver, "table", table),
	}, nil
}

// Units yields every unit whose revision is greater than afterRevision, in
// (revision, id) order. Iteration stops at the first database error, which
// is yielded once. Breaking out of the loop stops further reads.
func (c *Corpus) Units(ctx context.Context, afterRevision int64) iter.Seq2[tm.TranslationUnit, error] {
	return func(yield func(tm.TranslationUnit, error) bool) {
		var (
			lastRev int64 = afterRevision
			lastID  any
			pages   int
		)
		for {
			var rows *sql.Rows
			var err error
			if lastID == nil {
				rows, err = c.db.QueryContext(ctx, c.firstPage, lastRev, c.pageSize)
			} else {
				rows, err = c.db.QueryContext(ctx, c.nextPage, lastRev, lastRev, lastID, c.pageSize)
			}
			if err != nil {
				yield(tm.TranslationUnit{}, fmt.Errorf("querying corpus page %d: %w", pages+1, err))
				return
			}
			n, stopped, err := c.drain(rows, &lastRev, &lastID, yield)
			pages++
			if err != nil {
				yield(tm.TranslationUnit{}, fmt.Errorf("reading corpus page %d: %w", pages, err))
				return
			}
			if stopped {
				return
			}
			if n < c.pageSize {
				c.logger.Debug("corpus exhausted", "pages", pages, "last_revision", lastRev)
				return
			}
		}
	}
}

func (c *Corpus) drain(rows *sql.Rows, lastRev *int64, lastID *any, yield func(tm.TranslationUnit, error) bool) (int, bool, error) {
	defer rows.Close()
	n := 0
	for rows.Next() {
		var (
			rawID                          any
			u                              tm.TranslationUnit
			project, checksum, email, name sql.NullString
		)
		if err := rows.Scan(&rawID, &u.SourceText, &u.TargetText, &u.SourceLocale, &u.TargetLocale,
			&project, &checksum, &email, &name, &u.Revision); err != nil {
			return n, false, err
		}
		u.ID = idString(rawID)
		u.Project = project.String
		u.Checksum = checksum.String
		u.SubmitterEmail = email.String
		u.SubmitterName = name.String
		if b, ok := rawID.([]byte); ok {
			rawID = string(b)
		}
		*lastRev, *lastID = u.Revision, rawID
		n++
		if !yield(u, nil) {
			return n, true, nil
		}
	}
	return n, false, rows.Err()
}

// MaxRevision returns the highest revision in the corpus, or 0 when empty.
func (c *Corpus) MaxRevision(ctx context.Context) (int64, error) {
	var rev int64
	if err := c.db.QueryRowContext(ctx, c.maxRev).Scan(&rev); err != nil {
		return 0, fmt.Errorf("reading max corpus revision: %w", err)
	}
	return rev, nil
}

func (c *Corpus) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the database if Open created it.
func (c *Corpus) Close() error {
	return c.close()
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(id)
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
