package markov

import (
	"fmt"
	"io"
)

// Train tokenizes a single stream and returns the model trained on it. It is
// a convenience for small inputs; corpus training that spans many files and
// workers lives in the trainer package and merges one Aggregator per file.
func Train(r io.Reader, contextSize int, tokenizer Tokenizer) (*Model, error) {
	a, err := NewAggregator(contextSize)
	if err != nil {
		return nil, err
	}
	if _, err = a.Consume(tokenizer.NewStream(r)); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	return a.Finalize(), nil
}
