package index

import (
	"sort"
	"sync"
)

// MemoryIndex is an inverted index from (locale pair, term) to documents,
// plus an exact map from normalized source text. It is rebuilt from the
// document store on startup and kept current by every committed write.
type MemoryIndex struct {
	mu       sync.RWMutex
	docs     map[string]*Entry
	terms    map[string]map[string]map[string]struct{}
	exact    map[string]map[string]map[string]struct{}
	docTerms map[string][]string
	docExact map[string]string
}

func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{}
	m.reset()
	return m
}

func (m *MemoryIndex) reset() {
	m.docs = make(map[string]*Entry)
	m.terms = make(map[string]map[string]map[string]struct{})
	m.exact = make(map[string]map[string]map[string]struct{})
	m.docTerms = make(map[string][]string)
	m.docExact = make(map[string]string)
}

// Put adds or replaces a document. terms must be distinct.
func (m *MemoryIndex) Put(e Entry, terms []string, exactKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(e.DocID)

	pair := PairKey(e.SourceLocale, e.TargetLocale)
	entry := e
	m.docs[e.DocID] = &entry
	m.docTerms[e.DocID] = terms
	m.docExact[e.DocID] = exactKey

	byTerm := m.terms[pair]
	if byTerm == nil {
		byTerm = make(map[string]map[string]struct{})
		m.terms[pair] = byTerm
	}
	for _, term := range terms {
		ids := byTerm[term]
		if ids == nil {
			ids = make(map[string]struct{})
			byTerm[term] = ids
		}
		ids[e.DocID] = struct{}{}
	}

	byText := m.exact[pair]
	if byText == nil {
		byText = make(map[string]map[string]struct{})
		m.exact[pair] = byText
	}
	ids := byText[exactKey]
	if ids == nil {
		ids = make(map[string]struct{})
		byText[exactKey] = ids
	}
	ids[e.DocID] = struct{}{}
}

// Remove deletes a document if present.
func (m *MemoryIndex) Remove(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(docID)
}

func (m *MemoryIndex) removeLocked(docID string) {
	old, ok := m.docs[docID]
	if !ok {
		return
	}
	pair := PairKey(old.SourceLocale, old.TargetLocale)
	if byTerm := m.terms[pair]; byTerm != nil {
		for _, term := range m.docTerms[docID] {
			delete(byTerm[term], docID)
			if len(byTerm[term]) == 0 {
				delete(byTerm, term)
			}
		}
	}
	if byText := m.exact[pair]; byText != nil {
		key := m.docExact[docID]
		delete(byText[key], docID)
		if len(byText[key]) == 0 {
			delete(byText, key)
		}
	}
	delete(m.docs, docID)
	delete(m.docTerms, docID)
	delete(m.docExact, docID)
}

// Candidates returns documents in the locale pair that share at least one
// term with the query or have the same normalized source text. Exact
// matches are reported with an Overlap of len(terms)+1 so they sort first.
// Results are ordered by overlap then document ID and capped at limit.
func (m *MemoryIndex) Candidates(pair string, terms []string, exactKey string, accept func(*Entry) bool, limit int) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overlap := make(map[string]int)
	for id := range m.exact[pair][exactKey] {
		overlap[id] = len(terms) + 1
	}
	byTerm := m.terms[pair]
	for _, term := range terms {
		for id := range byTerm[term] {
			if overlap[id] <= len(terms) {
				overlap[id]++
			}
		}
	}

	result := make(PostingList, 0, len(overlap))
	for id, n := range overlap {
		e := m.docs[id]
		if e == nil || (accept != nil && !accept(e)) {
			continue
		}
		result = append(result, Posting{Entry: e, Overlap: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Overlap != result[j].Overlap {
			return result[i].Overlap > result[j].Overlap
		}
		return result[i].Entry.DocID < result[j].Entry.DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (m *MemoryIndex) Get(docID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.docs[docID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}
