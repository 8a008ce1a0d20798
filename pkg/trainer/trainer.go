// Package trainer builds a context-window model from a directory of text.
//
// Every file is tokenized and counted by a worker of a bounded pool into a
// private markov.Aggregator. The partial tables are merged into the result in
// corpus order, so the trained model, symbol ids included, does not depend on
// the number of workers or on scheduling.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/stream"

	"github.com/CTAG07/markov-trainer/pkg/corpus"
	"github.com/CTAG07/markov-trainer/pkg/markov"
)

// Train reads every regular file below inputDir and returns the model of
// their symbol windows of contextSize symbols. Windows never span two files.
//
// contextSize is checked before the corpus is touched. The first failing
// file stops the run and its error is returned: a *corpus.ReadError for
// unreadable files, an error matching markov.ErrTokenization for rejected
// input, or markov.ErrAggregationOverflow. When ctx is cancelled no new file
// is started, files in progress finish, and the context error is returned.
// Train never returns both a model and an error.
func Train(ctx context.Context, inputDir string, contextSize int, opts ...Option) (*markov.Model, error) {
	o := newOptions(opts)

	run, err := markov.NewAggregator(contextSize)
	if err != nil {
		return nil, err
	}

	files, err := corpus.Walk(ctx, inputDir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	totalBytes := corpus.TotalSize(files)
	o.logger.InfoContext(ctx, "Training started",
		slog.String("input_dir", inputDir),
		slog.Int("files", len(files)),
		slog.String("size", humanize.IBytes(uint64(totalBytes))),
		slog.Int("context_size", contextSize),
		slog.Int("workers", o.workers),
	)

	var (
		stop      atomic.Bool
		firstErr  error // written by callbacks only, which never overlap
		merged    int
		doneBytes int64
		windows   int64
	)
	s := stream.New().WithMaxGoroutines(o.workers)
	for _, f := range files {
		if stop.Load() || ctx.Err() != nil {
			break
		}
		s.Go(func() stream.Callback {
			if stop.Load() || ctx.Err() != nil {
				return func() {}
			}
			part, n, err := countFile(f, contextSize, o.tokenizer)
			if err != nil {
				stop.Store(true)
			}
			return func() {
				if firstErr != nil {
					return
				}
				if err == nil {
					err = run.Merge(part)
				}
				if err != nil {
					firstErr = err
					stop.Store(true)
					return
				}

				merged++
				doneBytes += f.Size
				windows += int64(n)
				if n == 0 {
					o.logger.WarnContext(ctx, "File too short for a context window",
						slog.String("file", f.RelPath),
						slog.Int64("size", f.Size),
						slog.Int("context_size", contextSize),
					)
				} else {
					o.logger.DebugContext(ctx, "File merged",
						slog.String("file", f.RelPath),
						slog.Int("windows", n),
					)
				}
				if o.progressEvery > 0 && merged%o.progressEvery == 0 {
					o.logger.InfoContext(ctx, "Training progress",
						slog.Int("files_done", merged),
						slog.Int("files_total", len(files)),
						slog.String("read", humanize.IBytes(uint64(doneBytes))),
						slog.String("total", humanize.IBytes(uint64(totalBytes))),
					)
				}
			}
		})
	}
	s.Wait()

	if firstErr != nil {
		o.logger.ErrorContext(ctx, "Training failed", slog.Any("error", firstErr))
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		o.logger.WarnContext(ctx, "Training cancelled",
			slog.Int("files_done", merged),
			slog.Int("files_total", len(files)),
		)
		return nil, fmt.Errorf("training cancelled after %d of %d files: %w", merged, len(files), err)
	}

	m := run.Finalize()
	o.logger.InfoContext(ctx, "Training completed",
		slog.Int("files", merged),
		slog.String("size", humanize.IBytes(uint64(doneBytes))),
		slog.Int64("windows", windows),
		slog.Int("vocabulary", m.VocabSize()),
		slog.Int("contexts", m.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return m, nil
}

// countFile aggregates a single file into a fresh partial table.
func countFile(f corpus.File, contextSize int, tokenizer markov.Tokenizer) (*markov.Aggregator, int, error) {
	part, err := markov.NewAggregator(contextSize)
	if err != nil {
		return nil, 0, err
	}
	r, err := f.Open()
	if err != nil {
		return nil, 0, err
	}
	defer func(r io.ReadCloser) {
		_ = r.Close()
	}(r)

	n, err := part.Consume(tokenizer.NewStream(r))
	if err != nil {
		var rerr *corpus.ReadError
		if errors.As(err, &rerr) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%s: %w", f.Path, err)
	}
	return part, n, nil
}
