package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/backend"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/internal/tm"
	apperrors "github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/proto"
)

// Backends is the part of the backend registry the RPC service needs.
type Backends interface {
	Sources() []backend.Source
	Source(name string) (source.MatchSource, error)
	Writer(name string) (source.IndexWriter, error)
	Ping(ctx context.Context, name string) error
}

// RPC serves this instance's backends to peers. A peer names exactly one
// backend per call; nothing is aggregated on this side.
type RPC struct {
	backends Backends
	logger   *slog.Logger
}

func NewRPC(backends Backends) *RPC {
	return &RPC{
		backends: backends,
		logger:   slog.Default().With("component", "rpc-handler"),
	}
}

// Register installs the TM methods on s.
func (h *RPC) Register(s *grpc.Server) {
	s.SetErrorCoder(proto.ErrorCode)
	s.Register(proto.MethodLookup, h.lookup)
	s.Register(proto.MethodBulkIndex, h.bulkIndex)
	s.Register(proto.MethodPing, h.ping)
}

func (h *RPC) lookup(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.LookupRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	name := req.Backend
	if name == "" {
		name = proto.DefaultRemoteBackend
	}
	src, err := h.backends.Source(name)
	if err != nil {
		return nil, err
	}
	q := source.Query{
		SourceText:   req.SourceText,
		SourceLocale: req.SourceLocale,
		TargetLocale: req.TargetLocale,
		Project:      req.Project,
		Limit:        req.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = source.CandidateLimit(0)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	candidates, err := src.Lookup(ctx, q)
	if err != nil {
		h.logger.Warn("peer lookup failed", "backend", name, "error", err)
		return nil, err
	}
	resp := proto.LookupResponse{Candidates: make([]proto.Candidate, 0, len(candidates))}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, proto.Candidate{
			UnitRef:    c.UnitRef,
			SourceText: c.SourceText,
			TargetText: c.TargetText,
			RawScore:   c.RawScore,
		})
	}
	return resp, nil
}

func (h *RPC) bulkIndex(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.BulkIndexRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	name := req.Backend
	if name == "" {
		name = proto.DefaultRemoteBackend
	}
	w, err := h.backends.Writer(name)
	if err != nil {
		return nil, err
	}
	docs := make([]tm.IndexDocument, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = tm.IndexDocument{
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
	results, err := w.BulkIndex(ctx, docs)
	if err != nil {
		return nil, err
	}
	resp := proto.BulkIndexResponse{Results: make([]proto.DocumentResult, len(results))}
	for i, r := range results {
		resp.Results[i] = proto.DocumentResult{ID: r.ID, Rejection: proto.Rejection(r.Err)}
		if r.Err != nil {
			resp.Results[i].Reason = r.Err.Error()
		}
	}
	h.logger.Debug("peer bulk index", "backend", name, "documents", len(docs))
	return resp, nil
}

func (h *RPC) ping(ctx context.Context, raw json.RawMessage) (any, error) {
	var req proto.PingRequest
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
	}
	sources := h.backends.Sources()
	resp := proto.PingResponse{Status: proto.HealthServing, Backends: make([]string, 0, len(sources))}
	for _, s := range sources {
		resp.Backends = append(resp.Backends, s.Config.Name)
	}
	if req.Backend != "" {
		if err := h.backends.Ping(ctx, req.Backend); err != nil {
			h.logger.Warn("peer ping: backend not ready", "backend", req.Backend, "error", err)
			resp.Status = proto.HealthNotServing
		}
	}
	return resp, nil
}
