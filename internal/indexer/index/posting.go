package index

// Entry is the lookup-relevant part of a stored document.
type Entry struct {
	DocID        string
	SourceText   string
	TargetText   string
	Project      string
	SourceLocale string
	TargetLocale string
}

// Posting is a document that shares Overlap terms with a query.
type Posting struct {
	Entry   *Entry
	Overlap int
}

type PostingList []Posting

// PairKey identifies a locale pair. Terms are indexed per pair so a lookup
// never touches documents in other languages.
func PairKey(sourceLocale, targetLocale string) string {
	return sourceLocale + "\x00" + targetLocale
}
