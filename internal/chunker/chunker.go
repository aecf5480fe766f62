// Package chunker splits text into sentence-aligned chunks bounded by a hard
// character cap.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// HardCap is the largest chunk the embedding model accepts, in characters.
const HardCap = 512

// DefaultChunkSize is the configured chunk size when none is given.
const DefaultChunkSize = 512

// Segment is one positioned fragment of a document.
type Segment struct {
	DocumentID string
	Index      int
	Text       string
}

// Chunker splits documents using a configured chunk size.
type Chunker struct {
	chunkSize int
	hardCap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithHardCap lowers or raises the absolute cap. Non-positive values are ignored.
func WithHardCap(limit int) Option {
	return func(c *Chunker) {
		if limit > 0 {
			c.hardCap = limit
		}
	}
}

// New creates a Chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		hardCap:   HardCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxChars is the effective per-chunk limit.
func (c *Chunker) MaxChars() int {
	return min(c.chunkSize, c.hardCap)
}

// Split chunks text and tags each piece with its document and position.
func (c *Chunker) Split(docID, text string) []Segment {
	texts := Chunk(text, c.MaxChars())
	if len(texts) == 0 {
		return nil
	}
	out := make([]Segment, len(texts))
	for i, t := range texts {
		out[i] = Segment{DocumentID: docID, Index: i, Text: t}
	}
	return out
}

// MaxChars returns min(chunkSize, HardCap), using DefaultChunkSize for
// non-positive sizes.
func MaxChars(chunkSize int) int {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return min(chunkSize, HardCap)
}

// Chunk splits text into chunks of at most maxChars characters.
//
// Sentences are accumulated greedily; a sentence that alone exceeds maxChars
// is cut into maxChars-sized slices. Empty or whitespace-only text yields nil.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = MaxChars(0)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks     []string
		current    []string
		currentLen int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, slice(strings.Join(current, " "), maxChars)...)
		current = current[:0]
		currentLen = 0
	}

	for _, s := range Sentences(text) {
		n := utf8.RuneCountInString(s)
		if currentLen+n+1 <= maxChars || len(current) == 0 {
			current = append(current, s)
			currentLen += n + 1
			continue
		}
		flush()
		current = append(current, s)
		currentLen = n + 1
	}
	flush()
	return chunks
}

// Sentences splits text after '.', '!' or '?' when followed by whitespace.
// Pieces are trimmed and empty pieces dropped.
func Sentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) && isTerminal(prev) {
			end := i
			for end < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[end:])
				if !unicode.IsSpace(r2) {
					break
				}
				end += s2
			}
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = end
			i = end
			prev = ' '
			continue
		}
		prev = r
		i += size
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// slice cuts s into consecutive pieces of at most n characters.
func slice(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+n-1)/n)
	for i := 0; i < len(runes); i += n {
		out = append(out, string(runes[i:min(i+n, len(runes))]))
	}
	return out
}
