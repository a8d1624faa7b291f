package services

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkSplitterValidation(t *testing.T) {
	_, err := NewChunkSplitter(0, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewChunkSplitter(100, 100)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewChunkSplitter(100, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChunkSplitter(t *testing.T) {
	splitter, err := NewChunkSplitter(1000, 200)
	require.NoError(t, err)

	t.Run("empty and blank input", func(t *testing.T) {
		for _, in := range []string{"", "   \n\n\t "} {
			chunks, err := splitter.Split(in)
			require.NoError(t, err)
			assert.Empty(t, chunks)
			assert.NotNil(t, chunks)
		}
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		chunks, err := splitter.Split("水稻插秧前需要整地施肥。")
		require.NoError(t, err)
		assert.Equal(t, []string{"水稻插秧前需要整地施肥。"}, chunks)
	})

	t.Run("hard cut without separators", func(t *testing.T) {
		text := strings.Repeat("a", 2500)
		chunks, err := splitter.Split(text)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 2)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), splitter.ChunkSize())
			assert.NotEmpty(t, c)
		}
	})

	t.Run("chinese sentences measured in runes", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 300; i++ {
			fmt.Fprintf(&b, "第%03d条玉米施肥建议。", i)
		}
		chunks, err := splitter.Split(b.String())
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), splitter.ChunkSize())
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		text := strings.Repeat("paragraph one line.\nsecond line here.\n\n", 100)
		a, err := splitter.Split(text)
		require.NoError(t, err)
		b, err := splitter.Split(text)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestChunkSplitterOverlap(t *testing.T) {
	splitter, err := NewChunkSplitter(50, 10)
	require.NoError(t, err)

	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	chunks, err := splitter.Split(strings.Join(words, " "))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunks[i]), 50)
		first := strings.Fields(chunks[i])[0]
		assert.Contains(t, chunks[i-1], first, "chunk %d should start inside the previous chunk", i)
	}
	assert.Contains(t, chunks[len(chunks)-1], "w059")
}
