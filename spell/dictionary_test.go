package spell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcceptable(t *testing.T) {
	require.True(t, Acceptable("hello"))
	require.True(t, Acceptable("co-op"))
	require.False(t, Acceptable("a"))             // too short
	require.False(t, Acceptable("has space"))     // contains a space
	require.False(t, Acceptable("!!!!!"))         // all punctuation
	require.False(t, Acceptable("12345678"))      // all non-alphabetic
}

func TestDictInsertCommitFreq(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	require.NoError(t, err)
	defer d.Close()

	d.Insert("search", 3)
	d.Insert("search", 2)
	d.Insert("engine", 1)
	d.Insert("  bad  ", 99) // rejected: contains spaces

	require.Equal(t, uint64(5), d.Freq("search")) // buffered, pre-commit
	require.NoError(t, d.Commit())
	require.Equal(t, uint64(5), d.Freq("search"))
	require.Equal(t, uint64(1), d.Freq("engine"))
	require.Equal(t, uint64(0), d.Freq("bad"))

	// Reopening picks up the committed FST via meta.json.
	d2, err := Open(dir)
	require.NoError(t, err)
	defer d2.Close()
	require.Equal(t, uint64(5), d2.Freq("search"))
}

func TestDictSearchFuzzy(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	require.NoError(t, err)
	defer d.Close()

	d.Insert("search", 10)
	d.Insert("searching", 4)
	require.NoError(t, d.Commit())

	matches, err := d.Search("serch", 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	found := false
	for _, m := range matches {
		if m.Term == "search" {
			found = true
		}
	}
	require.True(t, found)
}
