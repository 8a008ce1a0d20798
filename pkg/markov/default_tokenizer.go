package markov

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// InvalidUTF8Policy declares what a RuneTokenizer does with bytes that are
// not part of a valid UTF-8 encoding.
type InvalidUTF8Policy int

const (
	// CoerceInvalid maps each invalid byte to its own single-byte symbol.
	CoerceInvalid InvalidUTF8Policy = iota
	// RejectInvalid fails the stream with a TokenizationError.
	RejectInvalid
)

// DefaultWordRegex matches runs of word characters or single punctuation marks.
const DefaultWordRegex = `[\w']+|[.,!?;]`

type tokenizerOptions struct {
	invalid   InvalidUTF8Policy
	normalize bool
	form      norm.Form
	wordRegex *regexp.Regexp
}

// Option configures one of the tokenizers in this package. Options that do
// not apply to a tokenizer are ignored by it.
type Option func(*tokenizerOptions)

// WithInvalidUTF8 sets the invalid byte policy of a RuneTokenizer.
// Default: CoerceInvalid
func WithInvalidUTF8(p InvalidUTF8Policy) Option {
	return func(o *tokenizerOptions) {
		o.invalid = p
	}
}

// WithNormalization applies a Unicode normalization form to the input before
// splitting it into runes. Normalization rewrites bytes, so the symbols no
// longer reproduce the raw input exactly.
func WithNormalization(f norm.Form) Option {
	return func(o *tokenizerOptions) {
		o.normalize = true
		o.form = f
	}
}

// WithWordRegex sets the regex a WordTokenizer uses to find words.
// Default: DefaultWordRegex
func WithWordRegex(expr string) Option {
	return func(o *tokenizerOptions) {
		o.wordRegex = regexp.MustCompile(expr)
	}
}

func newTokenizerOptions(opts []Option) tokenizerOptions {
	o := tokenizerOptions{invalid: CoerceInvalid}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wordRegex == nil {
		o.wordRegex = regexp.MustCompile(DefaultWordRegex)
	}
	return o
}

// RuneTokenizer emits one symbol per UTF-8 code point. It is the default
// tokenizer used for training.
type RuneTokenizer struct {
	opts tokenizerOptions
}

// NewRuneTokenizer creates a rune tokenizer. Invalid bytes are coerced to
// single-byte symbols unless WithInvalidUTF8(RejectInvalid) is given.
func NewRuneTokenizer(opts ...Option) *RuneTokenizer {
	return &RuneTokenizer{opts: newTokenizerOptions(opts)}
}

// NewStream returns the stream processor.
func (t *RuneTokenizer) NewStream(r io.Reader) StreamTokenizer {
	if t.opts.normalize {
		r = t.opts.form.Reader(r)
	}
	return &runeStream{r: bufio.NewReader(r), policy: t.opts.invalid}
}

type runeStream struct {
	r      *bufio.Reader
	policy InvalidUTF8Policy
	offset int64
	err    error
}

func (s *runeStream) Next() (Symbol, error) {
	if s.err != nil {
		return "", s.err
	}
	r, size, err := s.r.ReadRune()
	if err != nil {
		s.err = err
		return "", err
	}
	if r == utf8.RuneError && size == 1 {
		if s.policy == RejectInvalid {
			s.err = &TokenizationError{Offset: s.offset, Reason: "invalid UTF-8 byte"}
			return "", s.err
		}
		// ReadRune consumed exactly one byte; read it back raw.
		_ = s.r.UnreadRune()
		b, _ := s.r.ReadByte()
		s.offset++
		return Symbol([]byte{b}), nil
	}
	s.offset += int64(size)
	return Symbol(string(r)), nil
}

// ByteTokenizer emits one symbol per input byte. It never fails.
type ByteTokenizer struct{}

// NewByteTokenizer creates a byte tokenizer.
func NewByteTokenizer() *ByteTokenizer {
	return &ByteTokenizer{}
}

// NewStream returns the stream processor.
func (t *ByteTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &byteStream{r: bufio.NewReader(r)}
}

type byteStream struct {
	r *bufio.Reader
}

func (s *byteStream) Next() (Symbol, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return "", err
	}
	return Symbol([]byte{b}), nil
}

// WordTokenizer splits text into words and punctuation with a regular
// expression. The text between two matches is emitted as a symbol of its own,
// so whitespace and line breaks are kept and no input is dropped.
type WordTokenizer struct {
	re *regexp.Regexp
}

// NewWordTokenizer creates a word tokenizer with default settings, which can
// be overridden with WithWordRegex.
func NewWordTokenizer(opts ...Option) *WordTokenizer {
	o := newTokenizerOptions(opts)
	return &WordTokenizer{re: o.wordRegex}
}

// NewStream returns the stream processor.
func (t *WordTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &wordStream{r: bufio.NewReaderSize(r, wordChunkSize), re: t.re}
}

const (
	// wordChunkSize bounds how much of a line is read at once.
	wordChunkSize = 64 << 10
	// maxWordSize is the longest symbol held back waiting for more input.
	// Longer runs are emitted in pieces.
	maxWordSize = 4 * wordChunkSize
)

type wordStream struct {
	r       *bufio.Reader
	re      *regexp.Regexp
	pending []byte
	buffer  []Symbol
	eof     bool
}

// Next returns the next word or gap. Input is read a line at a time, or in
// chunks of wordChunkSize for longer lines. A chunk that ends mid-line keeps
// its last symbol pending, since the following bytes may extend it.
func (s *wordStream) Next() (Symbol, error) {
	for len(s.buffer) == 0 { // Loop until we have symbols
		if s.eof {
			if len(s.pending) == 0 {
				return "", io.EOF
			}
			s.buffer = s.split(string(s.pending))
			s.pending = s.pending[:0]
			continue
		}

		chunk, err := s.r.ReadSlice('\n')
		s.pending = append(s.pending, chunk...)
		switch {
		case err == nil:
			s.buffer = s.split(string(s.pending))
			s.pending = s.pending[:0]
		case errors.Is(err, bufio.ErrBufferFull):
			syms := s.split(string(s.pending))
			if len(syms) == 1 && len(s.pending) < maxWordSize {
				continue
			}
			if len(syms) > 1 {
				last := syms[len(syms)-1]
				syms = syms[:len(syms)-1]
				s.pending = append(s.pending[:0], last...)
			} else {
				s.pending = s.pending[:0]
			}
			s.buffer = syms
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			return "", err
		}
	}

	sym := s.buffer[0]
	s.buffer = s.buffer[1:]
	return sym, nil
}

func (s *wordStream) split(line string) []Symbol {
	if line == "" {
		return nil
	}
	var out []Symbol
	last := 0
	for _, loc := range s.re.FindAllStringIndex(line, -1) {
		if loc[0] == loc[1] {
			continue // empty matches carry no input
		}
		if loc[0] > last {
			out = append(out, Symbol(line[last:loc[0]]))
		}
		out = append(out, Symbol(line[loc[0]:loc[1]]))
		last = loc[1]
	}
	if last < len(line) {
		out = append(out, Symbol(line[last:]))
	}
	return out
}
