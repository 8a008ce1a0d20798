package markov

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxCount is the largest count, and the largest total, an Aggregator will
// hold. It is the largest value both artifact formats store exactly.
const MaxCount uint64 = math.MaxInt64

// Aggregator accumulates (context, next) observations into a counts table.
// Counting is commutative and associative: any order or partition of the same
// observations yields the same table. An Aggregator is not safe for
// concurrent use; parallel training gives each worker its own and merges
// them with Merge.
//
// After Finalize the Aggregator is closed, and calling any method other than
// the read-only accessors panics.
type Aggregator struct {
	contextSize int
	maxCount    uint64
	vocab       *Vocabulary
	chains      map[string]map[int]uint64 // prefix key -> next id -> count
	total       uint64
	finalized   bool
	keyBuf      []byte
	idBuf       []int
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithMaxCount lowers the count ceiling below MaxCount. Values of zero or
// above MaxCount are ignored.
func WithMaxCount(n uint64) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 && n <= MaxCount {
			a.maxCount = n
		}
	}
}

// NewAggregator returns an empty aggregator for contexts of contextSize symbols.
func NewAggregator(contextSize int, opts ...AggregatorOption) (*Aggregator, error) {
	if contextSize <= 0 {
		return nil, invalidConfig("context size must be positive, got %d", contextSize)
	}
	a := &Aggregator{
		contextSize: contextSize,
		maxCount:    MaxCount,
		vocab:       NewVocabulary(),
		chains:      make(map[string]map[int]uint64),
		idBuf:       make([]int, 0, contextSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ContextSize returns the number of symbols in every context.
func (a *Aggregator) ContextSize() int { return a.contextSize }

// Total returns the number of observations folded in so far.
func (a *Aggregator) Total() uint64 { return a.total }

// Len returns the number of distinct contexts observed so far.
func (a *Aggregator) Len() int { return len(a.chains) }

func (a *Aggregator) mustBuild() {
	if a.finalized {
		panic("markov: aggregator used after Finalize")
	}
}

// Observe counts one occurrence of next following context.
func (a *Aggregator) Observe(context []Symbol, next Symbol) error {
	a.mustBuild()
	if len(context) != a.contextSize {
		return invalidConfig("context has %d symbols, aggregator expects %d", len(context), a.contextSize)
	}
	// No count exceeds the total, so a full total is the only way this
	// observation can overflow. Check it before interning anything.
	if a.total >= a.maxCount {
		return fmt.Errorf("%w: total observations would exceed %d", ErrAggregationOverflow, a.maxCount)
	}
	ids := a.idBuf[:0]
	for _, s := range context {
		ids = append(ids, a.vocab.Intern(s))
	}
	a.idBuf = ids
	return a.observe(ids, a.vocab.Intern(next))
}

func (a *Aggregator) observe(context []int, next int) error {
	a.keyBuf = appendKey(a.keyBuf[:0], context)
	return a.add(a.keyBuf, next, 1)
}

// add increases the count of key -> next by n, failing instead of exceeding
// the ceiling. Nothing is modified when it fails.
func (a *Aggregator) add(key []byte, next int, n uint64) error {
	nexts := a.chains[string(key)]
	var c uint64
	if nexts != nil {
		c = nexts[next]
	}
	if c > a.maxCount-n {
		return fmt.Errorf("%w: count for prefix %q -> %d would exceed %d", ErrAggregationOverflow, key, next, a.maxCount)
	}
	if a.total > a.maxCount-n {
		return fmt.Errorf("%w: total observations would exceed %d", ErrAggregationOverflow, a.maxCount)
	}
	if nexts == nil {
		nexts = make(map[int]uint64, 1)
		a.chains[string(key)] = nexts
	}
	nexts[next] = c + n
	a.total += n
	return nil
}

// internSource assigns vocabulary ids to symbols as they are pulled, so every
// symbol of a stream enters the vocabulary even when the stream is too short
// to produce a window.
type internSource struct {
	src   Source[Symbol]
	vocab *Vocabulary
}

func (s *internSource) Next() (int, error) {
	sym, err := s.src.Next()
	if err != nil {
		return 0, err
	}
	return s.vocab.Intern(sym), nil
}

// Consume reads src to the end, folding in every window. It returns the
// number of windows observed. Errors from src other than io.EOF are returned
// unchanged. The windows read before an error stay counted.
func (a *Aggregator) Consume(src Source[Symbol]) (int, error) {
	a.mustBuild()
	w, err := NewWindows[int](&internSource{src: src, vocab: a.vocab}, a.contextSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		win, err := w.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err = a.observe(win.Context, win.Next); err != nil {
			return n, err
		}
		n++
	}
}

// Merge adds every count of other into a. Symbols new to a are assigned ids
// in other's id order, so merging partial tables in a fixed order reproduces
// the vocabulary of a sequential run. other is left unchanged. After a
// failed Merge, a holds part of other's counts and should be discarded.
func (a *Aggregator) Merge(other *Aggregator) error {
	a.mustBuild()
	other.mustBuild()
	if other.contextSize != a.contextSize {
		return invalidConfig("cannot merge context size %d into %d", other.contextSize, a.contextSize)
	}

	remap := make([]int, other.vocab.Len()) // other id -> a id
	for id, sym := range other.vocab.symbols {
		remap[id] = a.vocab.Intern(sym)
	}

	ids := make([]int, 0, a.contextSize)
	for key, nexts := range other.chains {
		var ok bool
		if ids, ok = parseKey(key, ids); !ok {
			return fmt.Errorf("malformed prefix key %q", key)
		}
		for i, id := range ids {
			ids[i] = remap[id]
		}
		a.keyBuf = appendKey(a.keyBuf[:0], ids)
		for next, c := range nexts {
			if err := a.add(a.keyBuf, remap[next], c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finalize closes the build phase and returns the frozen model. The
// aggregator's state moves into the model; the aggregator must not be used
// afterwards.
func (a *Aggregator) Finalize() *Model {
	a.mustBuild()
	a.finalized = true

	chains := make(map[string][]ChainToken, len(a.chains))
	for key, nexts := range a.chains {
		chains[key] = sortedTokens(nexts)
	}
	m := &Model{
		contextSize: a.contextSize,
		vocab:       a.vocab,
		chains:      chains,
		total:       a.total,
	}
	a.vocab = nil
	a.chains = nil
	return m
}

// thaw returns a new aggregator holding a copy of m's table, for operations
// that derive one model from another.
func (m *Model) thaw() *Aggregator {
	a := &Aggregator{
		contextSize: m.contextSize,
		maxCount:    MaxCount,
		vocab:       NewVocabulary(),
		chains:      make(map[string]map[int]uint64, len(m.chains)),
		total:       m.total,
		idBuf:       make([]int, 0, m.contextSize),
	}
	for _, sym := range m.vocab.symbols {
		a.vocab.Intern(sym)
	}
	for key, tokens := range m.chains {
		nexts := make(map[int]uint64, len(tokens))
		for _, t := range tokens {
			nexts[t.Id] = t.Freq
		}
		a.chains[key] = nexts
	}
	return a
}
