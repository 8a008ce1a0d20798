package markov

// Prune returns a new model without the chain links whose frequency is less
// than or equal to minFreq. Contexts left without links are dropped. The
// vocabulary is kept unchanged, so symbol ids stay valid.
func (m *Model) Prune(minFreq uint64) *Model {
	chains := make(map[string][]ChainToken, len(m.chains))
	var total uint64
	for key, tokens := range m.chains {
		var kept []ChainToken
		for _, t := range tokens {
			if t.Freq > minFreq {
				kept = append(kept, t)
				total += t.Freq
			}
		}
		if len(kept) > 0 {
			chains[key] = kept
		}
	}
	return &Model{
		contextSize: m.contextSize,
		vocab:       m.vocab,
		chains:      chains,
		total:       total,
	}
}

// PruneVocabulary returns a new model without the symbols observed fewer
// than minFreq times as a next symbol. Every link that starts from a context
// containing a removed symbol, or leads to one, is removed as well. The
// remaining symbols are renumbered densely, keeping their relative order.
func (m *Model) PruneVocabulary(minFreq uint64) *Model {
	freq := make([]uint64, m.vocab.Len())
	for _, tokens := range m.chains {
		for _, t := range tokens {
			freq[t.Id] += t.Freq
		}
	}

	remap := make([]int, len(freq)) // old id -> new id, -1 when removed
	vocab := NewVocabulary()
	for id, f := range freq {
		if f < minFreq {
			remap[id] = -1
			continue
		}
		remap[id] = vocab.Intern(m.vocab.symbols[id])
	}

	chains := make(map[string][]ChainToken, len(m.chains))
	var total uint64
	ids := make([]int, 0, m.contextSize)
	var keyBuf []byte
outer:
	for key, tokens := range m.chains {
		ids, _ = parseKey(key, ids)
		for i, id := range ids {
			if remap[id] < 0 {
				continue outer // Found a removed symbol, the whole context goes
			}
			ids[i] = remap[id]
		}
		var kept []ChainToken
		for _, t := range tokens {
			if remap[t.Id] >= 0 {
				kept = append(kept, ChainToken{Id: remap[t.Id], Freq: t.Freq})
				total += t.Freq
			}
		}
		if len(kept) > 0 {
			keyBuf = appendKey(keyBuf[:0], ids)
			chains[string(keyBuf)] = kept
		}
	}
	return &Model{
		contextSize: m.contextSize,
		vocab:       vocab,
		chains:      chains,
		total:       total,
	}
}
