package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

func tokens(folded string) map[string]struct{} {
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
		if unit := unitSuffix(f); unit != "" {
			set[unit] = struct{}{}
		}
	}
	return set
}

// unitSuffix returns "mg" for "500mg": a unit written straight after its quantity.
func unitSuffix(token string) string {
	i := strings.IndexFunc(token, func(r rune) bool { return !unicode.IsDigit(r) })
	if i <= 0 {
		return ""
	}
	unit := token[i:]
	if strings.IndexFunc(unit, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
		return ""
	}
	return unit
}

func foldHint(hint string) string {
	hint = strings.NewReplacer("_", " ", "-", " ").Replace(hint)
	return Fold(hint)
}
