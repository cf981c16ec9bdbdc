// Package query turns a raw user query string into an ordered list of
// term nodes (§3's query term tree) ready for posting-list lookups.
package query

// Kind is the closed set of term node variants. The original source
// expresses this as a dyn-dispatched sum type; here it is a tagged enum
// per the "polymorphism over scorers and mappers" design note, since the
// variant set never grows at runtime.
type Kind int

const (
	KindSimple Kind = iota
	KindPhrase
	KindNot
	KindSite
	KindTitle
	KindBody
	KindURL
	KindPossibleBang
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "Simple"
	case KindPhrase:
		return "Phrase"
	case KindNot:
		return "Not"
	case KindSite:
		return "Site"
	case KindTitle:
		return "Title"
	case KindBody:
		return "Body"
	case KindURL:
		return "Url"
	case KindPossibleBang:
		return "PossibleBang"
	default:
		return "Unknown"
	}
}

// Term is one node of the parsed query tree. Not wraps its inner term
// through the Inner pointer.
type Term struct {
	Kind Kind
	Text string

	// Inner holds the wrapped term for KindNot; nil otherwise.
	Inner *Term
}

// Simple builds a Simple term node.
func Simple(text string) Term { return Term{Kind: KindSimple, Text: text} }

// Phrase builds a Phrase term node.
func Phrase(text string) Term { return Term{Kind: KindPhrase, Text: text} }

// Not wraps inner in a Not term node.
func Not(inner Term) Term {
	cp := inner
	return Term{Kind: KindNot, Inner: &cp}
}

// Site builds a Site term node.
func Site(host string) Term { return Term{Kind: KindSite, Text: host} }

// Title builds an intitle: term node.
func Title(text string) Term { return Term{Kind: KindTitle, Text: text} }

// Body builds an inbody: term node.
func Body(text string) Term { return Term{Kind: KindBody, Text: text} }

// URL builds an inurl: term node.
func URL(text string) Term { return Term{Kind: KindURL, Text: text} }

// PossibleBang builds a candidate bang-command term node.
func PossibleBang(text string) Term { return Term{Kind: KindPossibleBang, Text: text} }

// Equal compares two term trees structurally; used by the parser
// scenario tests.
func (t Term) Equal(other Term) bool {
	if t.Kind != other.Kind || t.Text != other.Text {
		return false
	}
	if (t.Inner == nil) != (other.Inner == nil) {
		return false
	}
	if t.Inner == nil {
		return true
	}
	return t.Inner.Equal(*other.Inner)
}
