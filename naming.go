package graft

import (
	"strings"
	"unicode"

	"github.com/puzpuzpuz/xsync/v4"
)

// NamingConvention derives a data-graph key from a field name when the
// field has no explicit alias.
type NamingConvention interface {
	// Convert returns the key for name.
	Convert(name string) string
}

// NamingConventionFunc adapts a plain function to the NamingConvention interface.
type NamingConventionFunc func(name string) string

// Convert implements NamingConvention.
func (f NamingConventionFunc) Convert(name string) string {
	return f(name)
}

// tokenCase controls how each token of a name is cased.
type tokenCase int

const (
	caseLower tokenCase = iota
	caseUpper
	caseTitle
)

// caseConvention splits a name into words and re-joins them.
// Conversions are memoized; field names form a small, fixed set.
type caseConvention struct {
	first tokenCase // casing of the first word
	rest  tokenCase // casing of every following word
	sep   string
	cache *xsync.Map[string, string]
}

func newCaseConvention(first, rest tokenCase, sep string) *caseConvention {
	return &caseConvention{
		first: first,
		rest:  rest,
		sep:   sep,
		cache: xsync.NewMap[string, string](),
	}
}

func (c *caseConvention) Convert(name string) string {
	if key, ok := c.cache.Load(name); ok {
		return key
	}

	words := splitWords(name)
	for i, w := range words {
		mode := c.rest
		if i == 0 {
			mode = c.first
		}
		words[i] = applyCase(w, mode)
	}
	key := strings.Join(words, c.sep)

	c.cache.Store(name, key)
	return key
}

// Built-in naming conventions. Shown for the field name "createdAt".
var (
	CamelCase      NamingConvention = newCaseConvention(caseLower, caseTitle, "")  // createdAt
	PascalCase     NamingConvention = newCaseConvention(caseTitle, caseTitle, "")  // CreatedAt
	SnakeCase      NamingConvention = newCaseConvention(caseLower, caseLower, "_") // created_at
	SnakeUpperCase NamingConvention = newCaseConvention(caseUpper, caseUpper, "_") // CREATED_AT
	KebabCase      NamingConvention = newCaseConvention(caseLower, caseLower, "-") // created-at
	KebabUpperCase NamingConvention = newCaseConvention(caseUpper, caseUpper, "-") // CREATED-AT
	FlatCase       NamingConvention = newCaseConvention(caseLower, caseLower, "")  // createdat
	FlatUpperCase  NamingConvention = newCaseConvention(caseUpper, caseUpper, "")  // CREATEDAT
)

func applyCase(word string, mode tokenCase) string {
	switch mode {
	case caseUpper:
		return strings.ToUpper(word)
	case caseTitle:
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		return string(runes)
	default:
		return strings.ToLower(word)
	}
}

// splitWords splits an identifier into words on separators, case changes
// and acronym boundaries.
//   - "createdAt"      -> ["created", "At"]
//   - "OrderID"        -> ["Order", "ID"]
//   - "XMLParser"      -> ["XML", "Parser"]
//   - "created_at"     -> ["created", "at"]
func splitWords(s string) []string {
	var words []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if isSeparator(r) {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
			continue
		}

		if i > 0 && current.Len() > 0 && startsWord(runes, i) {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

// startsWord reports whether runes[i] begins a new word.
func startsWord(runes []rune, i int) bool {
	r, prev := runes[i], runes[i-1]

	// lower or digit to upper: "orderID" splits before 'I'
	if unicode.IsUpper(r) && !unicode.IsUpper(prev) {
		return true
	}

	// end of acronym: "XMLParser" splits before 'P'
	nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
	return unicode.IsUpper(r) && unicode.IsUpper(prev) && nextLower
}
