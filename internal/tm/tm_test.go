package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIDIsStable(t *testing.T) {
	a := DocumentID("translate", "en", "fr", "abc")
	assert.Equal(t, a, DocumentID("translate", "en", "fr", "abc"))
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, DocumentID("translate", "en", "de", "abc"))
	assert.NotEqual(t, a, DocumentID("other", "en", "fr", "abc"))
	// Field boundaries are part of the identity.
	assert.NotEqual(t, DocumentID("ab", "c", "fr", "x"), DocumentID("a", "bc", "fr", "x"))
}

func TestSubmitterIdentityHash(t *testing.T) {
	assert.Equal(t, "0bc83cb571cd1c50ba6f3e8a78ef1346", SubmitterIdentityHash(" MyEmailAddress@example.com "))
	assert.Empty(t, SubmitterIdentityHash("  "))
}

func TestNewIndexDocument(t *testing.T) {
	u := TranslationUnit{
		ID:             "42",
		SourceText:     "Open file",
		TargetText:     "Ouvrir le fichier",
		SourceLocale:   "en",
		TargetLocale:   "fr",
		Project:        "editor",
		Checksum:       "c1",
		SubmitterEmail: "someone@example.com",
		Revision:       7,
	}
	doc := NewIndexDocument(u)
	assert.Equal(t, DocumentID("editor", "en", "fr", "c1"), doc.ID)
	assert.Equal(t, int64(7), doc.Revision)
	assert.NotEmpty(t, doc.SubmitterIdentityHash)
	require.NoError(t, ValidateDocument(doc))
}

func TestValidateDocument(t *testing.T) {
	doc := NewIndexDocument(TranslationUnit{SourceText: " ", TargetText: "x", SourceLocale: "en"})
	err := ValidateDocument(doc)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "source_text")
	assert.Contains(t, verr.Fields, "target_locale")
	assert.NotContains(t, verr.Fields, "target_text")
}
