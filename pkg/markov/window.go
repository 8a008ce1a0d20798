package markov

import "io"

// Source is a pull-based sequence. Next returns io.EOF once the sequence is
// exhausted. StreamTokenizer satisfies Source[Symbol].
type Source[T any] interface {
	Next() (T, error)
}

// Window is a single (context, next) observation.
type Window[T any] struct {
	Context []T
	Next    T
}

// Windows slides a context window of fixed size over a Source. Only the
// current window is held in memory, so the cost is bounded by the context
// size and not by the length of the input.
type Windows[T any] struct {
	src  Source[T]
	size int
	ring []T
	err  error
}

// NewWindows returns a window extractor over src. For a sequence of length n
// it yields exactly max(0, n-contextSize) windows; short sequences are
// skipped, never padded.
func NewWindows[T any](src Source[T], contextSize int) (*Windows[T], error) {
	if contextSize <= 0 {
		return nil, invalidConfig("context size must be positive, got %d", contextSize)
	}
	return &Windows[T]{
		src:  src,
		size: contextSize,
		ring: make([]T, 0, contextSize+1),
	}, nil
}

// Next returns the next window. The returned Context is only valid until the
// following call to Next; callers that keep it must copy it. Errors from the
// underlying source are returned unchanged, and io.EOF marks the end.
func (w *Windows[T]) Next() (Window[T], error) {
	if w.err != nil {
		return Window[T]{}, w.err
	}
	if len(w.ring) == w.size+1 {
		// Drop the oldest element to make room for the next one.
		copy(w.ring, w.ring[1:])
		w.ring = w.ring[:w.size]
	}
	for len(w.ring) < w.size+1 {
		v, err := w.src.Next()
		if err != nil {
			w.err = err
			return Window[T]{}, err
		}
		w.ring = append(w.ring, v)
	}
	return Window[T]{Context: w.ring[:w.size], Next: w.ring[w.size]}, nil
}

// SliceSource adapts an in-memory slice to a Source.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// NewSliceSource returns a Source that yields items in order.
func NewSliceSource[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Next() (T, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, io.EOF
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}
