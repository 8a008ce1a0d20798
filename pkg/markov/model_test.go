package markov

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
)

const fishText = "one fish two fish. red fish blue fish."

func contextSymbols(m *Model, ids []int) []Symbol {
	out := make([]Symbol, len(ids))
	for i, id := range ids {
		out[i], _ = m.Symbol(id)
	}
	return out
}

func TestPredictNormalization(t *testing.T) {
	text := createBenchmarkCorpus()
	m := trainString(t, text[:min(len(text), 2048)], 2)

	for _, e := range m.Entries() {
		ctx := contextSymbols(m, e.Context)
		dist, err := m.Predict(ctx)
		if err != nil {
			t.Fatalf("Predict(%q) failed: %v", ctx, err)
		}
		if dist.Empty() {
			t.Fatalf("Predict(%q) is empty for a trained context", ctx)
		}
		if sum := dist.Sum(); math.Abs(sum-1) > 1e-9 {
			t.Errorf("Predict(%q) sums to %v", ctx, sum)
		}
		for i := 1; i < len(dist); i++ {
			if dist[i].Probability > dist[i-1].Probability {
				t.Errorf("Predict(%q) is not ordered by probability: %v", ctx, dist)
				break
			}
		}
	}
}

func TestPredictUnknownContext(t *testing.T) {
	m := trainWords(t, fishText, 2)

	testCases := []struct {
		name    string
		context []Symbol
	}{
		{"never observed", symbols("fish", "fish")},
		{"symbol outside vocabulary", symbols("green", " ")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dist, err := m.Predict(tc.context)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if !dist.Empty() || dist.Sum() != 0 {
				t.Errorf("expected an empty distribution, got %v", dist)
			}
			if p := dist.Probability("fish"); p != 0 {
				t.Errorf("expected zero probability, got %v", p)
			}
		})
	}
}

func TestPredictContextLength(t *testing.T) {
	m := trainWords(t, fishText, 2)
	for _, ctx := range [][]Symbol{nil, symbols("fish"), symbols(" ", "fish", " ")} {
		if _, err := m.Predict(ctx); !errors.Is(err, ErrContextLength) {
			t.Errorf("Predict(%q) error = %v, want ErrContextLength", ctx, err)
		}
	}
}

func TestPredictWordModel(t *testing.T) {
	m := trainWords(t, fishText, 2)
	dist, err := m.Predict(symbols(" ", "fish"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dist) != 2 || dist.Probability(" ") != 0.5 || dist.Probability(".") != 0.5 {
		t.Errorf("unexpected distribution %v", dist)
	}
	// Ties keep id order.
	if dist[0].Symbol != " " {
		t.Errorf("expected the lower id first, got %v", dist)
	}
}

func TestModelEqual(t *testing.T) {
	a := trainString(t, "abracadabra", 2)
	b := trainString(t, "abracadabra", 2)
	if !a.Equal(b) {
		t.Error("models trained on the same input should be equal")
	}
	if a.Equal(trainString(t, "abracadabra", 3)) {
		t.Error("models with different context sizes should not be equal")
	}
	if a.Equal(trainString(t, "abracadabrx", 2)) {
		t.Error("models with different counts should not be equal")
	}
	if a.Equal(nil) {
		t.Error("a model should not equal nil")
	}
	var n *Model
	if !n.Equal(nil) {
		t.Error("nil should equal nil")
	}
}

func TestModelMerge(t *testing.T) {
	a := trainString(t, "abcab", 1)
	b := trainString(t, "cdcd", 1)

	merged, err := a.Merge(b)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Total() != a.Total()+b.Total() {
		t.Errorf("Total() = %d, want %d", merged.Total(), a.Total()+b.Total())
	}
	if got := merged.Vocabulary(); !slices.Equal(got, symbols("a", "b", "c", "d")) {
		t.Errorf("Vocabulary() = %q", got)
	}
	tokens, total, _ := merged.NextTokens(symbols("c"))
	// "abcab" has c->a, "cdcd" has c->d twice.
	if total != 3 || len(tokens) != 2 {
		t.Errorf("NextTokens(c) = %v, total %d", tokens, total)
	}

	// The inputs are unchanged.
	if !a.Equal(trainString(t, "abcab", 1)) || !b.Equal(trainString(t, "cdcd", 1)) {
		t.Error("Merge modified its inputs")
	}

	if _, err := a.Merge(trainString(t, "abc", 2)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestModelEntries(t *testing.T) {
	m := trainWords(t, fishText, 2)
	entries := m.Entries()
	if len(entries) != m.Len() {
		t.Fatalf("got %d entries, want %d", len(entries), m.Len())
	}
	for i := 1; i < len(entries); i++ {
		if slices.Compare(entries[i-1].Context, entries[i].Context) >= 0 {
			t.Fatalf("entries are not sorted: %v before %v", entries[i-1].Context, entries[i].Context)
		}
	}
	if sumCounts(m) != m.Total() {
		t.Errorf("sum of counts %d != Total %d", sumCounts(m), m.Total())
	}

	// Entries hands out copies.
	entries[0].Next[0].Freq += 100
	if sumCounts(m) != m.Total() {
		t.Error("modifying Entries() changed the model")
	}
	vocab := m.Vocabulary()
	vocab[0] = "changed"
	if s, _ := m.Symbol(0); s == "changed" {
		t.Error("modifying Vocabulary() changed the model")
	}
}

func TestModelStats(t *testing.T) {
	m := trainWords(t, fishText, 2)
	stats := m.Stats()

	if stats.ContextSize != 2 || stats.VocabSize != 7 {
		t.Errorf("unexpected sizes: %+v", stats)
	}
	if stats.TotalFrequency != 15 {
		t.Errorf("TotalFrequency = %d, want 15", stats.TotalFrequency)
	}
	if stats.MaxFrequency != 2 {
		t.Errorf("MaxFrequency = %d, want 2", stats.MaxFrequency)
	}
	if stats.Contexts != m.Len() {
		t.Errorf("Contexts = %d, want %d", stats.Contexts, m.Len())
	}
	if !strings.Contains(m.String(), "context_size=2") {
		t.Errorf("String() = %q", m.String())
	}
}
