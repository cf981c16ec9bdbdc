package query

import "strings"

// prefixKeyword associates a literal query prefix with the term Kind it
// produces when followed by non-empty text.
type prefixKeyword struct {
	prefix string
	kind   Kind
}

var prefixKeywords = []prefixKeyword{
	{"site:", KindSite},
	{"intitle:", KindTitle},
	{"inbody:", KindBody},
	{"inurl:", KindURL},
}

// bangPrefix is the leader character for an inline redirect command.
const bangPrefix = '!'

// Parse tokenizes a single lower-cased query string into an ordered
// sequence of term nodes. Parsing never fails: any input, including the
// empty string, yields a (possibly empty) slice.
func Parse(s string) []Term {
	raw := tokenize(s)
	terms := make([]Term, 0, len(raw))
	for _, tok := range raw {
		terms = append(terms, parseToken(tok))
	}
	return terms
}

type rawToken struct {
	text     string
	isPhrase bool
}

// tokenize splits s on ASCII whitespace, treating a properly terminated
// "…" run as a single phrase token. An opening quote with no matching
// close is left attached to its token and does not start a phrase.
func tokenize(s string) []rawToken {
	var tokens []rawToken
	i, n := 0, len(s)

	for i < n {
		for i < n && isASCIISpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}

		if s[i] == '"' {
			if closeIdx := strings.IndexByte(s[i+1:], '"'); closeIdx != -1 {
				closeIdx += i + 1
				tokens = append(tokens, rawToken{text: s[i+1 : closeIdx], isPhrase: true})
				i = closeIdx + 1
				continue
			}
			// Unterminated: falls through to normal word scanning below,
			// the quote character stays part of the token.
		}

		start := i
		for i < n && !isASCIISpace(s[i]) {
			i++
		}
		tokens = append(tokens, rawToken{text: s[start:i], isPhrase: false})
	}

	return tokens
}

func isASCIISpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// parseToken classifies a single raw token into a term node.
func parseToken(tok rawToken) Term {
	if tok.isPhrase {
		return Phrase(tok.text)
	}

	text := tok.text

	if strings.HasPrefix(text, "-") {
		rest := text[1:]
		if rest != "" && !strings.HasPrefix(rest, "-") {
			return Not(parseToken(rawToken{text: rest}))
		}
		// "-" alone, or "--x": literal simple term.
		return Simple(text)
	}

	for _, kw := range prefixKeywords {
		if strings.HasPrefix(text, kw.prefix) {
			suffix := text[len(kw.prefix):]
			if suffix == "" {
				return Simple(text)
			}
			return Term{Kind: kw.kind, Text: suffix}
		}
	}

	if len(text) > 1 && text[0] == bangPrefix {
		return PossibleBang(text[1:])
	}

	return Simple(text)
}

// Join renders terms back into a query string, separated by single
// spaces.
func Join(terms []Term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// String renders a single term back into its surface form.
func (t Term) String() string {
	switch t.Kind {
	case KindPhrase:
		return `"` + t.Text + `"`
	case KindNot:
		if t.Inner == nil {
			return "-"
		}
		return "-" + t.Inner.String()
	case KindSite:
		return "site:" + t.Text
	case KindTitle:
		return "intitle:" + t.Text
	case KindBody:
		return "inbody:" + t.Text
	case KindURL:
		return "inurl:" + t.Text
	case KindPossibleBang:
		return string(bangPrefix) + t.Text
	default:
		return t.Text
	}
}
