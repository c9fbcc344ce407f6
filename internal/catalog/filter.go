package catalog

import (
	"strings"
	"unicode"

	"github.com/tphakala/fieldlog/internal/observation"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Filter returns the records whose common or scientific name contains query,
// ignoring letter case and diacritics. Order is preserved. An empty query
// returns records unchanged.
func Filter(records []observation.SpeciesRecord, query string) []observation.SpeciesRecord {
	needle := foldName(query)
	if needle == "" {
		return records
	}

	matched := make([]observation.SpeciesRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(foldName(rec.CommonName), needle) ||
			strings.Contains(foldName(rec.ScientificName), needle) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// foldName strips combining marks after canonical decomposition and applies
// Unicode case folding, so "Épervier" and "epervier" compare equal.
// Transformers carry state and are built per call.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		stripped = strings.TrimSpace(s)
	}
	return cases.Fold().String(stripped)
}
