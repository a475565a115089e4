package tm

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxTextLength   = 64 * 1024
	maxLocaleLength = 32
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocument reports structural problems that no retry can fix. A nil
// result means the document can be written.
func ValidateDocument(doc IndexDocument) error {
	errs := make(map[string]string)

	if doc.ID == "" {
		errs["id"] = "id is required"
	}
	checkText(errs, "source_text", doc.SourceText)
	checkText(errs, "target_text", doc.TargetText)
	checkLocale(errs, "source_locale", doc.SourceLocale)
	checkLocale(errs, "target_locale", doc.TargetLocale)

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkText(errs map[string]string, field, text string) {
	switch {
	case strings.TrimSpace(text) == "":
		errs[field] = "must not be empty"
	case !utf8.ValidString(text):
		errs[field] = "must be valid UTF-8"
	case len(text) > maxTextLength:
		errs[field] = fmt.Sprintf("must be at most %d bytes", maxTextLength)
	}
}

func checkLocale(errs map[string]string, field, locale string) {
	switch {
	case locale == "":
		errs[field] = "is required"
	case len(locale) > maxLocaleLength || strings.ContainsAny(locale, " \t\n/"):
		errs[field] = "is not a locale code"
	}
}
