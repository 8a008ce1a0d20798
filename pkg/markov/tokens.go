package markov

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// Symbol is a single unit of the model's vocabulary. It holds the exact
// input bytes the tokenizer mapped to it, which need not be valid UTF-8.
type Symbol string

// Tokenizer is an interface that defines the contract for splitting input
// bytes into symbols. Implementations must hold no per-input state, so the
// same Tokenizer can serve many files concurrently.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one symbol at a time.
type StreamTokenizer interface {
	// Next returns the next symbol from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (Symbol, error)
}

// Join concatenates symbols back into text. For tokenizers that never drop
// input, Join over a full stream reproduces the input.
func Join(symbols []Symbol) string {
	var sb strings.Builder
	for _, s := range symbols {
		sb.WriteString(string(s))
	}
	return sb.String()
}

// Tokenize reads the whole stream into memory. Intended for short inputs such
// as seeds and queries; training never materializes a file this way.
func Tokenize(t Tokenizer, r io.Reader) ([]Symbol, error) {
	stream := t.NewStream(r)
	var out []Symbol
	for {
		sym, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
}

// Vocabulary maps symbols to dense integer ids. Ids are assigned in order of
// first occurrence, starting from zero.
type Vocabulary struct {
	ids     map[Symbol]int
	symbols []Symbol
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{ids: make(map[Symbol]int)}
}

// Intern returns the id of s, assigning the next free id on first sight.
func (v *Vocabulary) Intern(s Symbol) int {
	if id, ok := v.ids[s]; ok {
		return id
	}
	id := len(v.symbols)
	v.ids[s] = id
	v.symbols = append(v.symbols, s)
	return id
}

// ID looks up the id of s without assigning one.
func (v *Vocabulary) ID(s Symbol) (int, bool) {
	id, ok := v.ids[s]
	return id, ok
}

// Symbol returns the symbol with the given id.
func (v *Vocabulary) Symbol(id int) (Symbol, bool) {
	if id < 0 || id >= len(v.symbols) {
		return "", false
	}
	return v.symbols[id], true
}

// Len returns the number of distinct symbols.
func (v *Vocabulary) Len() int {
	return len(v.symbols)
}

// appendKey appends the prefix key for ids ("3 0 7") to buf.
func appendKey(buf []byte, ids []int) []byte {
	for j, id := range ids {
		if j > 0 {
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	return buf
}

// parseKey splits a prefix key back into ids. It returns false on malformed keys.
func parseKey(key string, dst []int) ([]int, bool) {
	dst = dst[:0]
	for _, part := range strings.Split(key, " ") {
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, false
		}
		dst = append(dst, id)
	}
	return dst, true
}
