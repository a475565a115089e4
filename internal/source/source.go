// Package source defines the capabilities every translation memory backend
// variant provides: looking up candidates and, for writable engines,
// accepting bulk writes.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
)

// Query is what a backend is asked for. Project scopes the lookup; empty
// means every project. Limit is an internal cap on returned candidates and
// is larger than the caller's result count so that merging has room.
type Query struct {
	SourceText   string
	SourceLocale string
	TargetLocale string
	Project      string
	Limit        int
}

// Validate rejects queries that no backend can answer.
func (q Query) Validate() error {
	if strings.TrimSpace(q.SourceText) == "" {
		return fmt.Errorf("%w: source text is required", apperrors.ErrInvalidInput)
	}
	if q.SourceLocale == "" || q.TargetLocale == "" {
		return fmt.Errorf("%w: source and target locale are required", apperrors.ErrInvalidInput)
	}
	return nil
}

// MatchSource returns raw candidates on its native score scale. A source
// with nothing to offer returns an empty slice and a nil error.
type MatchSource interface {
	Lookup(ctx context.Context, q Query) ([]tm.MatchCandidate, error)
}

// DocResult is the outcome for the document at the same position in a bulk
// request. Err is nil on success and otherwise wraps
// apperrors.ErrDocumentRejectedPermanent or ErrDocumentRejectedTransient.
type DocResult struct {
	ID  string
	Err error
}

// IndexWriter accepts batches of documents. A non-nil error means the whole
// request failed and no per-document results are available.
type IndexWriter interface {
	BulkIndex(ctx context.Context, docs []tm.IndexDocument) ([]DocResult, error)
}

// RevisionTracker is implemented by writers that keep an import checkpoint:
// the corpus revision up to which every unit has been dealt with. Incremental
// imports resume after it.
type RevisionTracker interface {
	LastRevision(ctx context.Context) (int64, error)
	SaveRevision(ctx context.Context, rev int64) error
}

// Resetter is implemented by writers that can drop their contents before a
// full rebuild.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger is implemented by sources that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer releases a source's resources.
type Closer interface {
	Close() error
}

// CandidateLimit is the number of candidates requested from each backend for
// a caller who wants maxResults ranked matches.
func CandidateLimit(maxResults int) int {
	return max(4*maxResults, 20)
}
