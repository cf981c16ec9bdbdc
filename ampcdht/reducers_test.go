package ampcdht

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/axiomhq/hyperloglog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64Bytes(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func bytesF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// HLL merge idempotence: merge(x,x) == x register-wise (§8).
func TestReduceHLLIdempotent(t *testing.T) {
	sketch := hyperloglog.New()
	sketch.Insert([]byte("node-1"))
	sketch.Insert([]byte("node-2"))
	bytesX, err := sketch.MarshalBinary()
	require.NoError(t, err)

	merged, changed, err := reduceHLL(bytesX, bytesX)
	require.NoError(t, err)
	assert.False(t, changed)

	out := hyperloglog.New()
	require.NoError(t, out.UnmarshalBinary(merged))
	assert.Equal(t, sketch.Estimate(), out.Estimate())
}

// size(merge(x,y)) >= max(size(x), size(y)) (§8).
func TestReduceHLLMergeGrows(t *testing.T) {
	x := hyperloglog.New()
	x.Insert([]byte("a"))
	xBytes, err := x.MarshalBinary()
	require.NoError(t, err)

	y := hyperloglog.New()
	y.Insert([]byte("a"))
	y.Insert([]byte("b"))
	y.Insert([]byte("c"))
	yBytes, err := y.MarshalBinary()
	require.NoError(t, err)

	merged, _, err := reduceHLL(xBytes, yBytes)
	require.NoError(t, err)

	out := hyperloglog.New()
	require.NoError(t, out.UnmarshalBinary(merged))

	assert.GreaterOrEqual(t, out.Estimate(), x.Estimate())
	assert.GreaterOrEqual(t, out.Estimate(), y.Estimate())
}

func TestReduceF64Add(t *testing.T) {
	zero := make([]byte, 8)
	merged, changed, err := reduceF64Add(zero, f64Bytes(2.5))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.InDelta(t, 2.5, bytesF64(merged), 1e-9)

	merged2, changed2, err := reduceF64Add(merged, f64Bytes(1.5))
	require.NoError(t, err)
	assert.True(t, changed2)
	assert.InDelta(t, 4.0, bytesF64(merged2), 1e-9)
}
