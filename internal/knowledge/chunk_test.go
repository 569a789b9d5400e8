package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{name: "empty", text: "", size: 4, overlap: 1, want: nil},
		{name: "whitespace only", text: " \n\t ", size: 4, overlap: 1, want: nil},
		{name: "shorter than window", text: "abc", size: 4, overlap: 1, want: []string{"abc"}},
		{name: "exact window", text: "abcd", size: 4, overlap: 1, want: []string{"abcd"}},
		{name: "overlapping windows", text: "abcdefghij", size: 4, overlap: 1, want: []string{"abcd", "defg", "ghij"}},
		{name: "last window shorter", text: "abcdefgh", size: 4, overlap: 2, want: []string{"abcd", "cdef", "efgh"}},
		{name: "no overlap", text: "abcdef", size: 3, overlap: 0, want: []string{"abc", "def"}},
		{name: "collapses whitespace", text: "a  b\n\nc\td", size: 100, overlap: 10, want: []string{"a b c d"}},
		{name: "counts runes", text: "ááááá", size: 3, overlap: 1, want: []string{"ááá", "ááá"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Chunk(tt.text, tt.size, tt.overlap)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunk_DefaultWindowCoversText(t *testing.T) {
	text := strings.Repeat("regra do pagador ", 200)
	chunks, err := Chunk(text, 900, 150)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks[:len(chunks)-1] {
		assert.Len(t, []rune(ch), 900, "chunk %d", i)
		assert.Equal(t, string([]rune(ch)[750:]), string([]rune(chunks[i+1])[:150]), "overlap %d", i)
	}
	collapsed := strings.Join(strings.Fields(text), " ")
	assert.True(t, strings.HasSuffix(collapsed, chunks[len(chunks)-1]))
}

func TestChunk_InvalidParameters(t *testing.T) {
	for _, p := range [][2]int{{0, 0}, {10, 10}, {10, 11}, {10, -1}} {
		_, err := Chunk("text", p[0], p[1])
		assert.ErrorIs(t, err, ErrInvalidChunking, "size=%d overlap=%d", p[0], p[1])
	}
}
