package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	ContextSize    int    // The number of symbols in every context.
	VocabSize      int    // The number of distinct symbols.
	Contexts       int    // The number of distinct contexts.
	TotalChains    int    // The number of unique context->next links.
	TotalFrequency uint64 // The sum of frequencies of all links; the total number of trained transitions.
	MaxFrequency   uint64 // The largest single link frequency.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		ContextSize:    m.contextSize,
		VocabSize:      m.vocab.Len(),
		Contexts:       len(m.chains),
		TotalFrequency: m.total,
	}
	for _, tokens := range m.chains {
		stats.TotalChains += len(tokens)
		for _, t := range tokens {
			if t.Freq > stats.MaxFrequency {
				stats.MaxFrequency = t.Freq
			}
		}
	}
	return stats
}
