package sonic

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Query string
	Page  int
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := payload{Query: "hello world", Page: 2}
	require.NoError(t, WriteFrame(&buf, in))

	var out payload
	require.NoError(t, ReadFrame(&buf, &out))
	require.Equal(t, in, out)
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 8)
	// 2^64-1 bytes declared body size, well past MaxBodySize.
	for i := range header {
		header[i] = 0xff
	}
	buf.Write(header)

	var out payload
	err := ReadFrame(&buf, &out)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}
