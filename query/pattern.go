package query

import "strings"

// PatternPartKind is the closed set of pieces a site:/inurl: pattern
// lexes into.
type PatternPartKind int

const (
	PatternLiteral PatternPartKind = iota
	PatternWildcard
	PatternAnchor
)

// PatternPart is one lexed piece of a pattern string.
type PatternPart struct {
	Kind PatternPartKind
	Text string // populated only for PatternLiteral
}

// LexPattern splits a pattern string on '*' (wildcard) and '|' (anchor)
// markers, keeping the literal runs between them.
func LexPattern(s string) []PatternPart {
	var parts []PatternPart
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, PatternPart{Kind: PatternLiteral, Text: lit.String()})
			lit.Reset()
		}
	}

	for _, r := range s {
		switch r {
		case '*':
			flush()
			parts = append(parts, PatternPart{Kind: PatternWildcard})
		case '|':
			flush()
			parts = append(parts, PatternPart{Kind: PatternAnchor})
		default:
			lit.WriteRune(r)
		}
	}
	flush()

	return parts
}

// PositionField is a minimal view over a field's token-position stream,
// satisfied by the external posting-list store (§2, "Posting-list store
// — external: tantivy-like. Core consumes its iterator/positional API").
type PositionField interface {
	// TokenCount returns the number of tokens in the field for the
	// current document.
	TokenCount() int
	// PositionsOf returns the sorted token positions at which literal
	// occurs in the field for the current document.
	PositionsOf(literal string) []int
}

// MatchPattern reports whether field satisfies the lexed pattern per
// §4.3: literals must appear in order with inter-literal gap ≤ 1 unless
// separated by a wildcard (unbounded gap); a leading anchor pins the
// first literal to position 0, a trailing anchor pins the last literal
// to the final token position.
func MatchPattern(parts []PatternPart, field PositionField) bool {
	type literalOcc struct {
		text string
	}

	var literals []literalOcc
	leadingAnchor := len(parts) > 0 && parts[0].Kind == PatternAnchor
	trailingAnchor := len(parts) > 0 && parts[len(parts)-1].Kind == PatternAnchor

	// unbounded[i] is true when literal i may follow the previous
	// literal at any later position (a wildcard preceded it).
	unbounded := make([]bool, 0, len(parts))
	sawWildcardBefore := false
	for _, p := range parts {
		switch p.Kind {
		case PatternLiteral:
			literals = append(literals, literalOcc{text: p.Text})
			unbounded = append(unbounded, sawWildcardBefore)
			sawWildcardBefore = false
		case PatternWildcard:
			sawWildcardBefore = true
		case PatternAnchor:
			// handled via leadingAnchor/trailingAnchor
		}
	}

	if len(literals) == 0 {
		return true
	}

	tokenCount := field.TokenCount()
	candidatePositions := make([][]int, len(literals))
	for i, lit := range literals {
		candidatePositions[i] = field.PositionsOf(lit.text)
		if len(candidatePositions[i]) == 0 {
			return false
		}
	}

	// Backtracking search over the small candidate sets to find an
	// in-order placement honoring gap and anchor constraints.
	var search func(idx int, prevPos int) bool
	search = func(idx int, prevPos int) bool {
		if idx == len(literals) {
			return true
		}
		for _, pos := range candidatePositions[idx] {
			if idx == 0 {
				if leadingAnchor && pos != 0 {
					continue
				}
			} else {
				gap := pos - prevPos
				if !unbounded[idx] && gap != 1 {
					continue
				}
				if unbounded[idx] && gap <= 0 {
					continue
				}
			}
			if idx == len(literals)-1 && trailingAnchor && pos != tokenCount-1 {
				continue
			}
			if search(idx+1, pos) {
				return true
			}
		}
		return false
	}

	return search(0, -1)
}
