package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunking is returned for a non-positive size or an overlap that
// is negative or not smaller than the size.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Chunk collapses all whitespace runs to single spaces and splits text into
// windows of size runes, each starting overlap runes before the previous
// window ended. The last window ends exactly at the end of the text.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}

	runes := []rune(strings.Join(strings.Fields(text), " "))
	var out []string
	for i := 0; i < len(runes); {
		j := min(len(runes), i+size)
		out = append(out, string(runes[i:j]))
		if j == len(runes) {
			break
		}
		i = j - overlap
	}
	return out, nil
}
