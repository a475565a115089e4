package tm

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DocumentID derives the identity of an index document from its project,
// locale pair and content checksum. Identical content always maps to the
// same ID, so re-importing it overwrites instead of duplicating.
func DocumentID(project, sourceLocale, targetLocale, checksum string) string {
	h := sha256.New()
	for _, part := range []string{project, sourceLocale, targetLocale, checksum} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// SubmitterIdentityHash is the lowercase hex MD5 of the normalized e-mail, as
// used by avatar services. An empty address yields an empty hash.
func SubmitterIdentityHash(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// NewIndexDocument transforms a unit into its index representation.
func NewIndexDocument(u TranslationUnit) IndexDocument {
	return IndexDocument{
		ID:                    DocumentID(u.Project, u.SourceLocale, u.TargetLocale, u.Checksum),
		SourceText:            u.SourceText,
		TargetText:            u.TargetText,
		Project:               u.Project,
		SourceLocale:          u.SourceLocale,
		TargetLocale:          u.TargetLocale,
		SubmitterIdentityHash: SubmitterIdentityHash(u.SubmitterEmail),
		Revision:              u.Revision,
		Checksum:              u.Checksum,
	}
}
