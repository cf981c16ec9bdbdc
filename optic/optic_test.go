package optic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexSkipsCommentsAndRecognizesTokens(t *testing.T) {
	src := `
		// this is a normal comment
		Ranking(Signal("host_centrality"), 3);
		/*
			this is a block comment
		 */
		Ranking(Signal("bm25"), 100);
		Rule {
			Matches {
				Url("/this/is/a/*/pattern")
			}
		}
	`
	toks, err := Lex(src)
	require.NoError(t, err)

	var kinds []TokenKind
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []TokenKind{
		TokRanking, TokOpenParen, TokSignal, TokOpenParen, TokString, TokCloseParen, TokComma, TokNumber, TokCloseParen, TokSemiColon,
		TokRanking, TokOpenParen, TokSignal, TokOpenParen, TokString, TokCloseParen, TokComma, TokNumber, TokCloseParen, TokSemiColon,
		TokRule, TokOpenBracket, TokMatches, TokOpenBracket, TokUrl, TokOpenParen, TokString, TokCloseParen, TokCloseBracket, TokCloseBracket,
	}, kinds)
}

func TestLexUnterminatedStringIsEOF(t *testing.T) {
	_, err := Lex(`Ranking(Signal("bm25), 3);`)
	require.Error(t, err)
}

func TestParseRankingAndRule(t *testing.T) {
	src := `
		Ranking(Signal("bm25"), 100);
		Rule {
			Matches { Domain("example.com") }
			Action(Boost(5));
		}
		Like(Site("foo.com"));
		Dislike(Site("spam.com"));
	`
	o, err := Parse(src)
	require.NoError(t, err)

	require.Len(t, o.Rankings, 1)
	require.Equal(t, "bm25", o.Rankings[0].Signal)
	require.Equal(t, 100.0, o.Rankings[0].Weight)

	require.Len(t, o.Rules, 1)
	require.Equal(t, ActionBoost, o.Rules[0].Action.Kind)
	require.Equal(t, 5.0, o.Rules[0].Action.Value)
	require.Equal(t, LocationDomain, o.Rules[0].Matches[0][0].Location)

	require.Equal(t, []string{"foo.com"}, o.HostRankings.Liked)
	require.Equal(t, []string{"spam.com"}, o.HostRankings.Disliked)
}

func TestParseDiscardedSiteBecomesBlockedHost(t *testing.T) {
	src := `
		Rule {
			Matches { Site("|example.com|") }
			Action(Discard);
		}
	`
	o, err := Parse(src)
	require.NoError(t, err)
	require.Empty(t, o.Rules)
	require.Equal(t, []string{"example.com"}, o.HostRankings.Blocked)
}

func TestParseDiscardNonMatching(t *testing.T) {
	o, err := Parse(`DiscardNonMatching;`)
	require.NoError(t, err)
	require.True(t, o.DiscardNonMatching)
}
