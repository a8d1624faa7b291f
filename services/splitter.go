package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultSeparators go from paragraph down to a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", "。", "！", "？", ". ", " ", ""}

// ChunkSplitter splits document text into overlapping chunks of at most
// ChunkSize runes.
type ChunkSplitter interface {
	Split(text string) ([]string, error)
	ChunkSize() int
}

type recursiveSplitter struct {
	inner     textsplitter.RecursiveCharacter
	chunkSize int
}

// NewChunkSplitter builds a recursive character splitter. overlap must be
// smaller than size.
func NewChunkSplitter(size, overlap int) (ChunkSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrValidation)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d)", ErrValidation, size)
	}
	inner := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(DefaultSeparators),
		textsplitter.WithKeepSeparator(true),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return &recursiveSplitter{inner: inner, chunkSize: size}, nil
}

func (s *recursiveSplitter) ChunkSize() int { return s.chunkSize }

func (s *recursiveSplitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}
