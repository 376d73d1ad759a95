package candidates

import (
	"strings"
	"unicode"

	"github.com/badoux/checkmail"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Options struct {
	// InitialVariants adds f.last and first.l after the base patterns.
	InitialVariants bool
}

func DefaultOptions() Options {
	return Options{InitialVariants: true}
}

// Generate returns candidate addresses for fullName at domain in priority order.
//
// A single-token name yields exactly token@domain. Longer names use the first and last
// tokens only. Output is lower-case, free of duplicates and syntactically valid.
func Generate(fullName, domain string, opts Options) []string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil
	}

	tokens := Tokens(fullName)
	var locals []string
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		locals = []string{tokens[0]}
	default:
		first, last := tokens[0], tokens[len(tokens)-1]
		f, l := initial(first), initial(last)
		locals = []string{
			first,
			first + "." + last,
			f + last,
			first + l,
			first + last,
			last,
		}
		if opts.InitialVariants {
			locals = append(locals, f+"."+last, first+"."+l)
		}
	}

	seen := make(map[string]struct{}, len(locals))
	out := make([]string, 0, len(locals))
	for _, local := range locals {
		addr := strings.ToLower(local + "@" + domain)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if checkmail.ValidateFormat(addr) != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// Tokens splits a full name on whitespace and normalizes each token for use in a local
// part. Tokens that normalize to nothing are dropped.
func Tokens(fullName string) []string {
	var out []string
	for _, raw := range strings.Fields(fullName) {
		if tok := normalizeToken(raw); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// letterFolds spells out Latin letters that have no canonical decomposition, so mark
// stripping alone would drop them.
var letterFolds = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"ł", "l", "Ł", "l",
	"ø", "o", "Ø", "o",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"đ", "d", "Đ", "d",
	"ð", "d", "Ð", "d",
	"þ", "th", "Þ", "th",
	"ı", "i",
	"ħ", "h", "Ħ", "h",
	"ŧ", "t", "Ŧ", "t",
)

// normalizeToken folds a name token to ASCII. A token that still holds a non-ASCII letter
// after folding yields "" rather than its ASCII remainder.
func normalizeToken(raw string) string {
	// Chained transformers carry state, so build one per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(stripMarks, letterFolds.Replace(raw))
	if err != nil {
		s = raw
	}
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.In(r, unicode.Lu, unicode.Ll, unicode.Lt, unicode.Lo):
			return ""
		}
	}
	return strings.Trim(b.String(), "-_")
}

func initial(tok string) string {
	if tok == "" {
		return ""
	}
	return tok[:1]
}
