package markov

import (
	"slices"
	"sort"
)

// ChainToken represents a potential next symbol after a context, with its id
// and the number of times it was observed there.
type ChainToken struct {
	Id   int
	Freq uint64
}

// Entry is one context of the counts table together with its next symbols.
type Entry struct {
	Context []int        // symbol ids, ContextSize long
	Next    []ChainToken // sorted by id, every Freq > 0
}

// Model is a trained, immutable context-window model. It is safe for
// concurrent use by multiple goroutines.
type Model struct {
	contextSize int
	vocab       *Vocabulary
	chains      map[string][]ChainToken
	total       uint64
}

// ContextSize returns the number of symbols in every context of the model.
func (m *Model) ContextSize() int { return m.contextSize }

// VocabSize returns the number of distinct symbols.
func (m *Model) VocabSize() int { return m.vocab.Len() }

// Vocabulary returns a copy of the symbols indexed by id.
func (m *Model) Vocabulary() []Symbol { return slices.Clone(m.vocab.symbols) }

// Symbol returns the symbol with the given id.
func (m *Model) Symbol(id int) (Symbol, bool) { return m.vocab.Symbol(id) }

// ID returns the id of a symbol.
func (m *Model) ID(s Symbol) (int, bool) { return m.vocab.ID(s) }

// Len returns the number of distinct contexts.
func (m *Model) Len() int { return len(m.chains) }

// Total returns the sum of all counts, which is the number of observations
// the model was trained on.
func (m *Model) Total() uint64 { return m.total }

// Entries returns the whole counts table ordered by context ids.
func (m *Model) Entries() []Entry {
	entries := make([]Entry, 0, len(m.chains))
	for key, tokens := range m.chains {
		ids, _ := parseKey(key, make([]int, 0, m.contextSize))
		entries = append(entries, Entry{Context: ids, Next: slices.Clone(tokens)})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return slices.Compare(a.Context, b.Context)
	})
	return entries
}

// NextTokens retrieves all observed next symbols for a context, and the sum
// of their frequencies. If the context was never observed, or contains a
// symbol outside the vocabulary, it returns a nil slice and a total of 0.
func (m *Model) NextTokens(context []Symbol) ([]ChainToken, uint64, error) {
	tokens, err := m.lookup(context)
	if err != nil || tokens == nil {
		return nil, 0, err
	}
	var total uint64
	for _, t := range tokens {
		total += t.Freq
	}
	return slices.Clone(tokens), total, nil
}

func (m *Model) lookup(context []Symbol) ([]ChainToken, error) {
	if len(context) != m.contextSize {
		return nil, ErrContextLength
	}
	ids := make([]int, len(context))
	for i, s := range context {
		id, ok := m.vocab.ID(s)
		if !ok {
			return nil, nil
		}
		ids[i] = id
	}
	return m.lookupIDs(ids), nil
}

func (m *Model) lookupIDs(ids []int) []ChainToken {
	var buf [64]byte
	return m.chains[string(appendKey(buf[:0], ids))]
}

// Equal reports whether two models have the same context size, the same
// vocabulary with the same ids, and identical counts.
func (m *Model) Equal(other *Model) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.contextSize != other.contextSize || m.total != other.total {
		return false
	}
	if !slices.Equal(m.vocab.symbols, other.vocab.symbols) {
		return false
	}
	if len(m.chains) != len(other.chains) {
		return false
	}
	for key, tokens := range m.chains {
		if !slices.Equal(tokens, other.chains[key]) {
			return false
		}
	}
	return true
}

// Merge returns a new model holding the counts of both models, as if it had
// been trained on both corpora. Symbols new to m get ids after m's own.
func (m *Model) Merge(other *Model) (*Model, error) {
	a := m.thaw()
	if err := a.Merge(other.thaw()); err != nil {
		return nil, err
	}
	return a.Finalize(), nil
}

func sortedTokens(nexts map[int]uint64) []ChainToken {
	tokens := make([]ChainToken, 0, len(nexts))
	for id, c := range nexts {
		tokens = append(tokens, ChainToken{Id: id, Freq: c})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Id < tokens[j].Id })
	return tokens
}
