package distsearch

import (
	"encoding/gob"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func init() {
	gob.Register("")
	gob.Register(0)
}

func TestWALAppendReplayClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append([]interface{}{"page-a", "page-b"}))
	require.NoError(t, w.Append([]interface{}{"page-c"}))

	var replayed []interface{}
	err = w.Replay(func(pages []interface{}) error {
		replayed = append(replayed, pages...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []interface{}{"page-a", "page-b", "page-c"}, replayed)

	require.NoError(t, w.Clear())

	var afterClear []interface{}
	err = w.Replay(func(pages []interface{}) error {
		afterClear = append(afterClear, pages...)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, afterClear)
}

func TestWALReplayChunksAt512(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.wal")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	pages := make([]interface{}, 1100)
	for i := range pages {
		pages[i] = i
	}
	require.NoError(t, w.Append(pages))

	var chunkSizes []int
	err = w.Replay(func(p []interface{}) error {
		chunkSizes = append(chunkSizes, len(p))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{512, 512, 76}, chunkSizes)
}
