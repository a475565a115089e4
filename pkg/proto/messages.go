// Package proto defines the messages exchanged between translation memory
// instances over the JSON-over-TCP RPC layer (see pkg/grpc).
//
// The types carry JSON struct tags only; both ends are built from this
// package, so there is no schema negotiation.
package proto

// Method names served by every instance.
const (
	MethodLookup    = "TM.Lookup"
	MethodBulkIndex = "TM.BulkIndex"
	MethodPing      = "TM.Ping"
)

// Error codes attached to RPC error responses.
const (
	CodeInvalidInput     = "invalid_input"
	CodeNotFound         = "backend_not_found"
	CodeUnsupported      = "unsupported"
	CodeUnavailable      = "unavailable"
	CodeTimeout          = "timeout"
	CodeNoBackends       = "no_backends"
	CodeInternal         = "internal"
	RejectionPermanent   = "permanent"
	RejectionTransient   = "transient"
	HealthServing        = "SERVING"
	HealthNotServing     = "NOT_SERVING"
	DefaultRemoteBackend = "local"
)

// LookupRequest asks one named backend on the remote instance for raw
// candidates. The remote side does not aggregate, so peers never fan out to
// each other.
type LookupRequest struct {
	Backend      string `json:"backend"`
	SourceText   string `json:"source_text"`
	SourceLocale string `json:"source_locale"`
	TargetLocale string `json:"target_locale"`
	Project      string `json:"project,omitempty"`
	Limit        int    `json:"limit"`
}

// Candidate is a raw, unnormalized match.
type Candidate struct {
	UnitRef    string  `json:"unit_ref"`
	SourceText string  `json:"source_text"`
	TargetText string  `json:"target_text"`
	RawScore   float64 `json:"raw_score"`
}

// LookupResponse is the output of TM.Lookup.
type LookupResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Document is an index document on the wire.
type Document struct {
	ID                    string `json:"id"`
	SourceText            string `json:"source_text"`
	TargetText            string `json:"target_text"`
	Project               string `json:"project"`
	SourceLocale          string `json:"source_locale"`
	TargetLocale          string `json:"target_locale"`
	SubmitterIdentityHash string `json:"submitter_identity_hash,omitempty"`
	Revision              int64  `json:"revision,omitempty"`
	Checksum              string `json:"checksum,omitempty"`
}

// BulkIndexRequest writes documents into a named backend on the remote
// instance.
type BulkIndexRequest struct {
	Backend   string     `json:"backend"`
	Documents []Document `json:"documents"`
}

// DocumentResult reports the outcome for the document at the same position
// in the request. Rejection is empty on success.
type DocumentResult struct {
	ID        string `json:"id"`
	Rejection string `json:"rejection,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BulkIndexResponse is the output of TM.BulkIndex.
type BulkIndexResponse struct {
	Results []DocumentResult `json:"results"`
}

// PingRequest optionally names a backend whose readiness should be checked.
type PingRequest struct {
	Backend string `json:"backend,omitempty"`
}

// PingResponse mirrors the gRPC health check status strings.
type PingResponse struct {
	Status   string   `json:"status"`
	Backends []string `json:"backends"`
}
