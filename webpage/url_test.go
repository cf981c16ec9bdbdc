package webpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Domain(t *testing.T) {
	u, err := Parse("//scripts.dailymail.co.uk")
	require.NoError(t, err)
	assert.Equal(t, "dailymail.co.uk", u.Domain())
	assert.Equal(t, "http://scripts.dailymail.co.uk", "http://"+u.Host())
}

func TestURL_IsHomepage(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"https://example.com/", true},
		{"https://example.com/test", false},
	}
	for _, tt := range tests {
		u, err := Parse(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, u.IsHomepage(), tt.in)
	}
}

func TestIntoAbsolute(t *testing.T) {
	got, err := IntoAbsolute("/test", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/test", got.Full())
}
