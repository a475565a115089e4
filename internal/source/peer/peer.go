// Package peer treats another instance of this service as a backend. Calls
// go over the JSON-over-TCP RPC layer and name one backend on the remote
// side, so a lookup never fans out further than one hop.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/proto"
)

// DefaultPort matches the default RPC port of the server.
const DefaultPort = 9400

// Source is a remote backend reached through a peer instance.
type Source struct {
	name    string
	backend string
	client  *grpc.Client
	logger  *slog.Logger
}

// New returns a Source for the backend called remoteBackend on the instance
// at addr. An empty remoteBackend means proto.DefaultRemoteBackend. The
// connection is opened on first use.
func New(name, addr, remoteBackend string, dialTimeout time.Duration) *Source {
	if remoteBackend == "" {
		remoteBackend = proto.DefaultRemoteBackend
	}
	return &Source{
		name:    name,
		backend: remoteBackend,
		client:  grpc.NewClient(addr, dialTimeout),
		logger:  slog.Default().With("component", "peer", "backend", name, "addr", addr),
	}
}

func (s *Source) Lookup(ctx context.Context, q source.Query) ([]tm.MatchCandidate, error) {
	var resp proto.LookupResponse
	err := s.client.CallContext(ctx, proto.MethodLookup, proto.LookupRequest{
		Backend:      s.backend,
		SourceText:   q.SourceText,
		SourceLocale: q.SourceLocale,
		TargetLocale: q.TargetLocale,
		Project:      q.Project,
		Limit:        q.Limit,
	}, &resp)
	if err != nil {
		return nil, s.mapErr(err)
	}
	out := make([]tm.MatchCandidate, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		out = append(out, tm.MatchCandidate{
			UnitRef:    c.UnitRef,
			SourceText: c.SourceText,
			TargetText: c.TargetText,
			RawScore:   c.RawScore,
		})
	}
	return out, nil
}

// BulkIndex forwards docs to the remote backend. A response whose length
// does not match the request is treated as a failed request.
func (s *Source) BulkIndex(ctx context.Context, docs []tm.IndexDocument) ([]source.DocResult, error) {
	req := proto.BulkIndexRequest{Backend: s.backend, Documents: make([]proto.Document, len(docs))}
	for i, d := range docs {
		req.Documents[i] = proto.Document{
			ID:                    d.ID,
			SourceText:            d.SourceText,
			TargetText:            d.TargetText,
			Project:               d.Project,
			SourceLocale:          d.SourceLocale,
			TargetLocale:          d.TargetLocale,
			SubmitterIdentityHash: d.SubmitterIdentityHash,
			Revision:              d.Revision,
			Checksum:              d.Checksum,
		}
	}
	var resp proto.BulkIndexResponse
	if err := s.client.CallContext(ctx, proto.MethodBulkIndex, req, &resp); err != nil {
		return nil, s.mapErr(err)
	}
	if len(resp.Results) != len(docs) {
		return nil, fmt.Errorf("%w: peer %s answered %d results for %d documents",
			apperrors.ErrBackendUnavailable, s.name, len(resp.Results), len(docs))
	}
	out := make([]source.DocResult, len(docs))
	for i, r := range resp.Results {
		out[i] = source.DocResult{ID: docs[i].ID, Err: proto.RejectionError(r.Rejection, r.Reason)}
	}
	return out, nil
}

// Ping asks the peer whether the remote backend is ready.
func (s *Source) Ping(ctx context.Context) error {
	var resp proto.PingResponse
	if err := s.client.CallContext(ctx, proto.MethodPing, proto.PingRequest{Backend: s.backend}, &resp); err != nil {
		return s.mapErr(err)
	}
	if resp.Status != proto.HealthServing {
		return fmt.Errorf("%w: peer %s reports %s", apperrors.ErrBackendUnavailable, s.name, resp.Status)
	}
	return nil
}

func (s *Source) Close() error {
	return s.client.Close()
}

func (s *Source) mapErr(err error) error {
	var remote *grpc.RemoteError
	switch {
	case errors.As(err, &remote):
		return proto.CodeError(remote.Code, remote.Message)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", apperrors.ErrBackendTimeout, err)
	default:
		s.logger.Debug("peer transport error", "error", err)
		return fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
	}
}
