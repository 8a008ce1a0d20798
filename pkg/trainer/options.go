package trainer

import (
	"io"
	"log/slog"
	"runtime"

	"github.com/CTAG07/markov-trainer/pkg/markov"
)

type options struct {
	logger        *slog.Logger
	workers       int
	tokenizer     markov.Tokenizer
	progressEvery int
}

// Option configures a training run.
type Option func(*options)

// WithLogger sets the logger for progress and warnings. A nil logger keeps
// the default, which discards everything. The logger never affects the
// trained model.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkers sets how many files are tokenized in parallel.
// Default: runtime.GOMAXPROCS(0)
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTokenizer sets the tokenizer applied to every file.
// Default: markov.NewRuneTokenizer()
func WithTokenizer(t markov.Tokenizer) Option {
	return func(o *options) {
		if t != nil {
			o.tokenizer = t
		}
	}
}

// WithProgressEvery logs a progress line after every n merged files. Zero
// disables progress lines.
// Default: 100
func WithProgressEvery(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.progressEvery = n
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:       runtime.GOMAXPROCS(0),
		tokenizer:     markov.NewRuneTokenizer(),
		progressEvery: 100,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
