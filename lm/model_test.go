package lm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogProbKnownBigram(t *testing.T) {
	dir := t.TempDir()
	m := NewModel(dir, 3)
	m.Add([]string{"the", "cat"}, 10)
	m.Add([]string{"the"}, 50)
	require.NoError(t, m.Commit())
	defer m.Close()

	lp := m.LogProb([]string{"the", "cat"}, LeftToRight)
	require.False(t, math.IsInf(lp, -1))
	require.InDelta(t, math.Log(10)-math.Log(50), lp, 1e-9)
}

func TestLogProbBacksOffOnUnseenTrigram(t *testing.T) {
	dir := t.TempDir()
	m := NewModel(dir, 3)
	m.Add([]string{"cat", "sat"}, 4)
	m.Add([]string{"sat"}, 20)
	require.NoError(t, m.Commit())
	defer m.Close()

	// "the cat sat" itself was never recorded (freq 0 means absent in
	// the FST, since 0 is never inserted); backoff should fall through
	// to the bigram/unigram floor and stay finite.
	lp := m.LogProb([]string{"the", "cat", "sat"}, LeftToRight)
	require.True(t, lp <= math.Log(0.4)+0.001)
}

func TestMergeSumsNCounts(t *testing.T) {
	dirA, dirB, dirOut := t.TempDir(), t.TempDir(), t.TempDir()

	a := NewModel(dirA, 2)
	a.Add([]string{"hello", "world"}, 3)
	require.NoError(t, a.Commit())

	b := NewModel(dirB, 2)
	b.Add([]string{"hello", "world"}, 2)
	b.Add([]string{"foo", "bar"}, 1)
	require.NoError(t, b.Commit())

	merged, err := Merge(dirOut, a, b)
	require.NoError(t, err)
	defer merged.Close()

	require.Equal(t, uint64(6), merged.nCounts[2])

	freq, ok := merged.freq([]string{"hello", "world"})
	require.True(t, ok)
	require.Equal(t, uint64(5), freq)
}
