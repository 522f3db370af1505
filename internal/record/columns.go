package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokens lowercases s, folds accents, and splits it into alphanumeric words.
func Tokens(s string) []string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// AlnumKey collapses name to uppercase letters and digits only, so
// "Business-Name" and "BUSINESS_NAME" share a key.
func AlnumKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ColumnIndex resolves loosely written names against a known column set.
type ColumnIndex struct {
	columns []string
	byUpper map[string]string
	byAlnum map[string]string
	tokens  map[string][]string
}

// NewColumnIndex indexes columns. Earlier entries win on key collisions.
func NewColumnIndex(columns []string) *ColumnIndex {
	idx := &ColumnIndex{
		byUpper: make(map[string]string, len(columns)),
		byAlnum: make(map[string]string, len(columns)),
		tokens:  make(map[string][]string, len(columns)),
	}
	for _, col := range columns {
		if strings.TrimSpace(col) == "" {
			continue
		}
		up := strings.ToUpper(strings.TrimSpace(col))
		if _, dup := idx.byUpper[up]; dup {
			continue
		}
		idx.columns = append(idx.columns, col)
		idx.byUpper[up] = col
		if key := AlnumKey(col); key != "" {
			if _, dup := idx.byAlnum[key]; !dup {
				idx.byAlnum[key] = col
			}
		}
		idx.tokens[col] = Tokens(col)
	}
	return idx
}

// Columns returns the indexed columns in insertion order.
func (idx *ColumnIndex) Columns() []string { return idx.columns }

// Len returns the number of indexed columns.
func (idx *ColumnIndex) Len() int { return len(idx.columns) }

// Resolve matches name by exact uppercase, then by alphanumeric key.
func (idx *ColumnIndex) Resolve(name string) (string, bool) {
	if col, ok := idx.byUpper[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return col, true
	}
	if key := AlnumKey(name); key != "" {
		if col, ok := idx.byAlnum[key]; ok {
			return col, true
		}
	}
	return "", false
}

// MatchTokens returns the single column whose tokens contain every token of
// name. Zero or several candidates both yield no match.
func (idx *ColumnIndex) MatchTokens(name string) (string, bool) {
	want := Tokens(name)
	if len(want) == 0 {
		return "", false
	}
	var match string
	for _, col := range idx.columns {
		if !Subset(want, idx.tokens[col]) {
			continue
		}
		if match != "" {
			return "", false
		}
		match = col
	}
	return match, match != ""
}

// ColumnTokens returns the cached tokens of an indexed column.
func (idx *ColumnIndex) ColumnTokens(col string) []string { return idx.tokens[col] }

// Subset reports whether every token in small appears in big.
func Subset(small, big []string) bool {
	set := make(map[string]struct{}, len(big))
	for _, t := range big {
		set[t] = struct{}{}
	}
	for _, t := range small {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
