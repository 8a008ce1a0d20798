package corpus

import (
	"errors"
	"fmt"
)

var (
	// ErrCorpusRead matches every failure to enumerate or read the corpus.
	ErrCorpusRead = errors.New("corpus read failed")
	// ErrEmptyCorpus is wrapped by the ReadError returned for a directory
	// without regular files.
	ErrEmptyCorpus = errors.New("corpus has no files")
)

// ReadError reports a corpus path that could not be listed, opened or read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read corpus %s: %v", e.Path, e.Err)
}

// Unwrap makes the error match both ErrCorpusRead and the underlying cause.
func (e *ReadError) Unwrap() []error {
	return []error{ErrCorpusRead, e.Err}
}
