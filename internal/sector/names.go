package sector

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mg-platform/enrich-cli/internal/validate"
)

// DefaultSlug is used when a name yields no usable URL characters.
const DefaultSlug = "entreprise-locale"

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9\s]`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Fold removes diacritics: "Bâtiment" becomes "Batiment".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// URLSlug turns a company name into a host label. Names whose slug exceeds
// 25 characters keep only their first three words.
func URLSlug(name string) string {
	if strings.TrimSpace(name) == "" {
		return DefaultSlug
	}
	clean := strings.ToLower(Fold(name))
	clean = strings.ReplaceAll(clean, "-", " ")
	clean = slugInvalid.ReplaceAllString(clean, "")
	clean = slugSpaces.ReplaceAllString(strings.TrimSpace(clean), "-")
	clean = strings.Trim(slugDashes.ReplaceAllString(clean, "-"), "-")

	if len(clean) > 25 {
		words := strings.Split(clean, "-")
		if len(words) > 3 {
			words = words[:3]
		}
		clean = strings.Join(words, "-")
	}
	if clean == "" {
		return DefaultSlug
	}
	return clean
}

// CleanCommune prepares a locality for name templates: title case, at most
// two words, "Local" when empty.
func CleanCommune(commune string) string {
	commune = strings.NewReplacer("-", " ", "'", " ").Replace(strings.TrimSpace(commune))
	words := strings.Fields(validate.TitleCase(commune))
	if len(words) == 0 {
		return "Local"
	}
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}

// ExpandPattern substitutes the cleaned commune into a name template.
func ExpandPattern(pattern, commune string) string {
	return strings.ReplaceAll(pattern, "{commune}", CleanCommune(commune))
}

// WebsitePatterns lists plausible addresses for a small local business.
func WebsitePatterns(name, commune string) []string {
	slug := URLSlug(name)
	loc := strings.ToLower(Fold(commune))
	loc = slugInvalid.ReplaceAllString(strings.NewReplacer("-", "", " ", "").Replace(loc), "")

	patterns := []string{
		"https://www." + slug + ".fr",
		"https://" + slug + ".wixsite.com/" + slug,
		"https://" + slug + ".business.site",
		"https://sites.google.com/view/" + slug,
	}
	if loc != "" {
		patterns = append(patterns, "https://www."+slug+"-"+loc+".fr")
	}
	return patterns
}

var searchStopwords = map[string]bool{
	"autres":   true,
	"activite": true,
	"activité": true,
	"services": true,
}

// AlternativeSearchName builds the query label for a record whose name is
// withheld: the locality followed by up to two significant label words.
func AlternativeSearchName(locality, label string) string {
	parts := []string{strings.TrimSpace(locality)}
	n := 0
	for _, w := range strings.Fields(strings.ToLower(label)) {
		if n == 2 {
			break
		}
		if len([]rune(w)) <= 4 || searchStopwords[w] {
			continue
		}
		parts = append(parts, w)
		n++
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
