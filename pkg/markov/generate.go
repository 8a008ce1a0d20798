package markov

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
)

// ErrEmptyModel is returned when generating from a model without contexts.
var ErrEmptyModel = errors.New("model has no contexts")

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength   int
	temperature float64
	topK        int
	seed        []Symbol
	rng         *rand.Rand
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of symbols to generate after the
// starting context. Generation stops earlier at a context with no data.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithTemperature adjusts the randomness of the symbol selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent symbols more likely).
// Values < 1.0 decrease randomness (making more frequent symbols even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent symbol).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the selection pool to the top `k` most frequent symbols
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithSeed starts generation from the given symbols instead of a randomly
// chosen context. The seed must hold at least ContextSize symbols, all of
// them in the model's vocabulary; its last ContextSize symbols form the
// starting context.
func WithSeed(seed []Symbol) GenerateOption {
	return func(o *generateOptions) { o.seed = seed }
}

// WithRand sets the random source, which makes generation reproducible.
func WithRand(r *rand.Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = r }
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		maxLength:   100,
		temperature: 1.0,
		topK:        0,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.rng == nil {
		options.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return options
}

// Generate samples text from the model and returns it, starting context
// included. Generation can be customized with GenerateOption functions.
func (m *Model) Generate(ctx context.Context, opts ...GenerateOption) (string, error) {
	var builder strings.Builder
	err := m.generate(ctx, newGenerateOptions(opts), func(s Symbol) bool {
		builder.WriteString(string(s))
		return true
	})
	if err != nil {
		return "", err
	}
	return builder.String(), nil
}

// GenerateStream samples from the model and returns a read-only channel of
// symbols, starting context included. Setup errors, such as an unknown seed
// symbol, are returned immediately. The channel is closed once generation is
// complete or the context is cancelled.
func (m *Model) GenerateStream(ctx context.Context, opts ...GenerateOption) (<-chan Symbol, error) {
	options := newGenerateOptions(opts)
	start, err := m.startContext(options)
	if err != nil {
		return nil, err
	}

	symbolChan := make(chan Symbol)
	go func() {
		defer close(symbolChan)
		_ = m.run(ctx, options, start, func(s Symbol) bool {
			select {
			case <-ctx.Done():
				return false
			case symbolChan <- s:
				return true
			}
		})
	}()
	return symbolChan, nil
}

func (m *Model) generate(ctx context.Context, options *generateOptions, emit func(Symbol) bool) error {
	start, err := m.startContext(options)
	if err != nil {
		return err
	}
	return m.run(ctx, options, start, emit)
}

// startContext returns the symbols generation starts from. They are emitted
// first, and the last ContextSize of them form the first context.
func (m *Model) startContext(options *generateOptions) ([]Symbol, error) {
	if len(options.seed) > 0 {
		if len(options.seed) < m.contextSize {
			return nil, invalidConfig("seed has %d symbols, need at least %d", len(options.seed), m.contextSize)
		}
		for _, s := range options.seed {
			if _, ok := m.vocab.ID(s); !ok {
				return nil, invalidConfig("seed symbol %q not found in model vocabulary", s)
			}
		}
		return options.seed, nil
	}

	entries := m.Entries()
	if len(entries) == 0 {
		return nil, ErrEmptyModel
	}
	// Weight every context by how often it was observed.
	choices := make([]ChainToken, len(entries))
	var total uint64
	for i, e := range entries {
		var freq uint64
		for _, t := range e.Next {
			freq += t.Freq
		}
		choices[i] = ChainToken{Id: i, Freq: freq}
		total += freq
	}
	e := entries[chooseNextToken(choices, total, options)]
	start := make([]Symbol, len(e.Context))
	for i, id := range e.Context {
		start[i], _ = m.vocab.Symbol(id)
	}
	return start, nil
}

// run contains the main loop for generating a chain. It stops when emit
// returns false.
func (m *Model) run(ctx context.Context, options *generateOptions, start []Symbol, emit func(Symbol) bool) error {
	for _, s := range start {
		if !emit(s) {
			return ctx.Err()
		}
	}

	prefix := make([]int, m.contextSize)
	for i, s := range start[len(start)-m.contextSize:] {
		prefix[i], _ = m.vocab.ID(s)
	}

	for generatedCount := 0; generatedCount < options.maxLength; generatedCount++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		choices := m.lookupIDs(prefix)
		if len(choices) == 0 { // Dead end in chain
			return nil
		}
		var totalFreq uint64
		for _, c := range choices {
			totalFreq += c.Freq
		}

		// Top-K sorts its input, so hand it a copy of the model's slice.
		nextToken := chooseNextToken(slices.Clone(choices), totalFreq, options)
		sym, _ := m.vocab.Symbol(nextToken)
		if !emit(sym) {
			return ctx.Err()
		}
		// Shift the prefix window and add the new symbol.
		prefix = append(prefix[1:], nextToken)
	}
	return nil
}

// chooseNextToken abstracts the selection logic from the generation loop.
// It returns the Id of the chosen token.
func chooseNextToken(choices []ChainToken, totalFreq uint64, options *generateOptions) int {
	var nextToken int

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sort.SliceStable(choices, func(i, j int) bool {
			return choices[i].Freq > choices[j].Freq
		})
		choices = choices[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Freq
		}
	}

	// temperature selection
	if options.temperature <= 0 { // Deterministic
		var maxFreq uint64
		for _, choice := range choices {
			if choice.Freq > maxFreq {
				maxFreq = choice.Freq
				nextToken = choice.Id
			}
		}
	} else if options.temperature == 1.0 { // Standard weighted random
		randChoice := options.rng.Uint64N(totalFreq)
		for _, choice := range choices {
			if randChoice < choice.Freq {
				nextToken = choice.Id
				break
			}
			randChoice -= choice.Freq
		}
	} else { // Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		epsilon := -1e9
		for i, choice := range choices {
			lp := math.Log(float64(choice.Freq)) / options.temperature
			logProbabilities[i] = lp
			if lp > epsilon {
				epsilon = lp
			}
		}
		var totalWeight float64
		weights := make([]float64, len(choices))
		for i, lp := range logProbabilities {
			w := math.Exp(lp - epsilon)
			weights[i] = w
			totalWeight += w
		}
		nextToken = choices[len(choices)-1].Id
		randChoice := options.rng.Float64() * totalWeight
		for i, choice := range choices {
			randChoice -= weights[i]
			if randChoice < 0 {
				nextToken = choice.Id
				break
			}
		}
	}
	return nextToken
}
