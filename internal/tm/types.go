// Package tm defines the translation memory data model shared by the match
// sources, the query aggregator and the bulk indexer.
package tm

import "time"

// TranslationUnit is a source string paired with its translation, as read
// from the corpus. It is never modified by this service.
type TranslationUnit struct {
	ID             string `json:"id"`
	SourceText     string `json:"source_text"`
	TargetText     string `json:"target_text"`
	SourceLocale   string `json:"source_locale"`
	TargetLocale   string `json:"target_locale"`
	Project        string `json:"project"`
	Checksum       string `json:"checksum"`
	SubmitterEmail string `json:"submitter_email,omitempty"`
	SubmitterName  string `json:"submitter_name,omitempty"`
	Revision       int64  `json:"revision"`
}

// MatchCandidate is a raw match produced by one backend. RawScore is on the
// backend's native scale.
type MatchCandidate struct {
	UnitRef    string  `json:"unit_ref,omitempty"`
	SourceText string  `json:"source_text"`
	TargetText string  `json:"target_text"`
	RawScore   float64 `json:"raw_score"`
	Backend    string  `json:"backend"`
}

// RankedMatch is a candidate after normalization, deduplication and ranking.
// It is the only match type returned to callers.
type RankedMatch struct {
	UnitRef    string   `json:"unit_ref,omitempty"`
	SourceText string   `json:"source_text"`
	TargetText string   `json:"target_text"`
	Score      float64  `json:"normalized_score"`
	Backends   []string `json:"contributing_backends"`
	Rank       int      `json:"rank"`
}

// IndexDocument is a TranslationUnit transformed for the local index.
type IndexDocument struct {
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

// Failure records why one document was not indexed.
type Failure struct {
	DocumentID string `json:"document_id"`
	UnitID     string `json:"unit_id,omitempty"`
	Reason     string `json:"reason"`
	Permanent  bool   `json:"permanent"`
}

// ImportSummary is the outcome of one bulk import run.
type ImportSummary struct {
	Attempted    int           `json:"attempted"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Failures     []Failure     `json:"failures"`
	Batches      int           `json:"batches"`
	LastRevision int64         `json:"last_revision"`
	Checkpoint   int64         `json:"checkpoint"`
	DryRun       bool          `json:"dry_run,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}
