package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned when a context size or option is
	// unusable. It is always reported before any input is read.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrTokenization is wrapped by every TokenizationError.
	ErrTokenization = errors.New("tokenization error")
	// ErrAggregationOverflow is returned when a count, or the running total,
	// would exceed the aggregator's maximum.
	ErrAggregationOverflow = errors.New("aggregation overflow")
	// ErrPersistence is wrapped by every PersistenceError.
	ErrPersistence = errors.New("persistence error")
	// ErrCorruptArtifact marks an artifact that was read but is not a valid model.
	ErrCorruptArtifact = errors.New("corrupt model artifact")
	// ErrContextLength is returned when a query context does not have
	// exactly ContextSize symbols.
	ErrContextLength = errors.New("context length does not match model")
)

// TokenizationError reports input that the tokenizer's declared policy
// cannot map to a symbol.
type TokenizationError struct {
	Offset int64 // byte offset of the offending input
	Reason string
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenization error at byte %d: %s", e.Offset, e.Reason)
}

func (e *TokenizationError) Unwrap() error { return ErrTokenization }

// PersistenceError reports a failure to save or load a model artifact.
type PersistenceError struct {
	Op   string // "save" or "load"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s model %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrPersistence and the underlying cause.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArtifact, fmt.Sprintf(format, args...))
}
