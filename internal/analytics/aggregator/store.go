// Package aggregator persists periodic snapshots of lookup statistics.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/analytics"
)

// Schema creates the snapshot table. It is valid for PostgreSQL and SQLite.
const Schema = `CREATE TABLE IF NOT EXISTS tm_stats_snapshots (
    data        TEXT NOT NULL,
    captured_at BIGINT NOT NULL
)`

const (
	historyDefault = 24
	historyMax     = 1000
)

// Store keeps analytics.AggregatedStats as JSON rows ordered by capture time.
type Store struct {
	db      *sql.DB
	insertQ string
	recentQ string
	log     *slog.Logger
}

// NewStore wraps db. driver only selects the placeholder style: "postgres"
// gets numbered placeholders, anything else gets "?".
func NewStore(db *sql.DB, driver string) *Store {
	arg := func(int) string { return "?" }
	if driver == "postgres" {
		arg = func(n int) string { return "$" + strconv.Itoa(n) }
	}
	return &Store{
		db:      db,
		insertQ: "INSERT INTO tm_stats_snapshots (data, captured_at) VALUES (" + arg(1) + ", " + arg(2) + ")",
		recentQ: "SELECT data FROM tm_stats_snapshots ORDER BY captured_at DESC LIMIT " + arg(1),
		log:     slog.Default().With("component", "stats-snapshots"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating snapshot table: %w", err)
	}
	return nil
}

// SaveSnapshot stores stats under its CapturedAt, or now when unset.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	if stats.CapturedAt.IsZero() {
		stats.CapturedAt = time.Now().UTC()
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.insertQ, string(data), stats.CapturedAt.UnixMilli()); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.log.Debug("snapshot saved", "total_lookups", stats.TotalLookups, "captured_at", stats.CapturedAt)
	return nil
}

// LatestSnapshot returns nil, nil on an empty table.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	recent, err := s.ListSnapshots(ctx, 1)
	if err != nil || len(recent) == 0 {
		return nil, err
	}
	return &recent[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are logged and left out.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.QueryContext(ctx, s.recentQ, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("reading snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			s.log.Warn("undecodable snapshot", "error", err)
			continue
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// History serves GET /api/v1/tm/stats/history?limit=N.
func (s *Store) History(w http.ResponseWriter, r *http.Request) {
	limit := historyDefault
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > historyMax {
			reply(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("limit must be between 1 and %d", historyMax),
			})
			return
		}
		limit = n
	}
	snapshots, err := s.ListSnapshots(r.Context(), limit)
	if err != nil {
		s.log.Error("reading history", "error", err)
		reply(w, http.StatusInternalServerError, map[string]string{"error": "could not read snapshots"})
		return
	}
	reply(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run saves a snapshot of agg every interval. When ctx ends it saves one
// last snapshot on a short detached deadline and returns nil.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) error {
	save := func(ctx context.Context) {
		if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
			s.log.Error("snapshot failed", "error", err)
		}
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			save(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(final)
			cancel()
			return nil
		}
	}
}
