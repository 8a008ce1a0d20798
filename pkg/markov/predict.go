package markov

import "sort"

// Prediction is the probability of one symbol following a context.
type Prediction struct {
	Symbol      Symbol
	Id          int
	Probability float64
}

// Distribution is a probability distribution over next symbols, ordered from
// most to least likely. An empty Distribution means the model has no data
// for the context.
type Distribution []Prediction

// Empty reports whether the distribution carries no data.
func (d Distribution) Empty() bool { return len(d) == 0 }

// Probability returns the probability of s, which is 0 for symbols never
// observed after the context.
func (d Distribution) Probability(s Symbol) float64 {
	for _, p := range d {
		if p.Symbol == s {
			return p.Probability
		}
	}
	return 0
}

// Sum returns the total probability mass: 1 for a non-empty distribution,
// up to floating point error, and 0 for an empty one.
func (d Distribution) Sum() float64 {
	var sum float64
	for _, p := range d {
		sum += p.Probability
	}
	return sum
}

// Predict returns the distribution of the symbol following context, derived
// by normalizing the observed counts. A context the model never saw yields
// an empty Distribution rather than a guess. A context of the wrong length
// returns ErrContextLength.
func (m *Model) Predict(context []Symbol) (Distribution, error) {
	tokens, total, err := m.NextTokens(context)
	if err != nil || total == 0 {
		return nil, err
	}
	d := make(Distribution, 0, len(tokens))
	for _, t := range tokens {
		sym, _ := m.vocab.Symbol(t.Id)
		d = append(d, Prediction{
			Symbol:      sym,
			Id:          t.Id,
			Probability: float64(t.Freq) / float64(total),
		})
	}
	sort.SliceStable(d, func(i, j int) bool {
		return d[i].Probability > d[j].Probability
	})
	return d, nil
}
