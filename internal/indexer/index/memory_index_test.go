package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, src, sl, tl, project string) Entry {
	return Entry{DocID: id, SourceText: src, TargetText: "t-" + id, SourceLocale: sl, TargetLocale: tl, Project: project}
}

func TestCandidatesRankByOverlap(t *testing.T) {
	m := NewMemoryIndex()
	m.Put(entry("a", "open file", "en", "fr", "p"), []string{"open", "fil"}, "open file")
	m.Put(entry("b", "open window", "en", "fr", "p"), []string{"open", "window"}, "open window")
	m.Put(entry("c", "open file", "en", "de", "p"), []string{"open", "fil"}, "open file")

	got := m.Candidates(PairKey("en", "fr"), []string{"open", "fil"}, "open files", nil, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Entry.DocID)
	assert.Equal(t, 2, got[0].Overlap)
	assert.Equal(t, "b", got[1].Entry.DocID)
}

func TestCandidatesExactWithoutTerms(t *testing.T) {
	m := NewMemoryIndex()
	m.Put(entry("ok", "OK", "en", "fr", "p"), nil, "ok")

	got := m.Candidates(PairKey("en", "fr"), nil, "ok", nil, 10)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Overlap)
}

func TestPutReplacesAndRemove(t *testing.T) {
	m := NewMemoryIndex()
	m.Put(entry("a", "open file", "en", "fr", "p"), []string{"open", "fil"}, "open file")
	m.Put(entry("a", "close window", "en", "fr", "p"), []string{"clos", "window"}, "close window")
	assert.Equal(t, 1, m.DocCount())
	assert.Empty(t, m.Candidates(PairKey("en", "fr"), []string{"open"}, "open", nil, 10))

	m.Remove("a")
	assert.Equal(t, 0, m.DocCount())
	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestCandidatesFilterAndLimit(t *testing.T) {
	m := NewMemoryIndex()
	m.Put(entry("a", "open", "en", "fr", "p1"), []string{"open"}, "open")
	m.Put(entry("b", "open", "en", "fr", "p2"), []string{"open"}, "open")
	m.Put(entry("c", "open", "en", "fr", "p2"), []string{"open"}, "open")

	got := m.Candidates(PairKey("en", "fr"), []string{"open"}, "open", func(e *Entry) bool { return e.Project == "p2" }, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Entry.DocID)
}
