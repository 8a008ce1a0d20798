package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CTAG07/markov-trainer/pkg/markov"
	"github.com/CTAG07/markov-trainer/pkg/trainer"
)

func newTrainCmd(a *app) *cobra.Command {
	var progressEvery int
	cmd := &cobra.Command{
		Use:   "train [input_dir]",
		Short: "Train a model from every file below a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := a.cfg.InputDir
			if len(args) == 1 {
				inputDir = args[0]
			}
			if inputDir == "" {
				return fmt.Errorf("%w: no input directory given", markov.ErrInvalidConfiguration)
			}
			tokenizer, err := a.cfg.NewTokenizer()
			if err != nil {
				return err
			}

			m, err := trainer.Train(cmd.Context(), inputDir, a.cfg.ContextSize,
				trainer.WithLogger(a.logger),
				trainer.WithWorkers(a.cfg.Workers),
				trainer.WithTokenizer(tokenizer),
				trainer.WithProgressEvery(progressEvery),
			)
			if err != nil {
				return err
			}
			if err = m.Save(a.cfg.Output); err != nil {
				return err
			}
			a.logger.InfoContext(cmd.Context(), "Model saved",
				slog.String("path", a.cfg.Output),
				slog.String("format", markov.FormatForPath(a.cfg.Output)),
				slog.String("model", m.String()),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&progressEvery, "progress-every", 100, "Log progress after every N files (0 disables)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [model]",
		Short: "Print statistics of a saved model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := modelPath(a, args)
			m, err := markov.Load(path)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			s := m.Stats()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "path\t%s\n", path)
			fmt.Fprintf(w, "size\t%s\n", humanize.IBytes(uint64(info.Size())))
			fmt.Fprintf(w, "context size\t%d\n", s.ContextSize)
			fmt.Fprintf(w, "vocabulary\t%s\n", humanize.Comma(int64(s.VocabSize)))
			fmt.Fprintf(w, "contexts\t%s\n", humanize.Comma(int64(s.Contexts)))
			fmt.Fprintf(w, "transitions\t%s\n", humanize.Comma(int64(s.TotalChains)))
			fmt.Fprintf(w, "observations\t%s\n", strconv.FormatUint(s.TotalFrequency, 10))
			fmt.Fprintf(w, "max frequency\t%s\n", strconv.FormatUint(s.MaxFrequency, 10))
			return w.Flush()
		},
	}
}

func newPredictCmd(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "predict <text>",
		Short: "Print the next symbol distribution after the last context of text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := markov.Load(a.cfg.Output)
			if err != nil {
				return err
			}
			ctxSymbols, err := contextOf(a, m, args[0])
			if err != nil {
				return err
			}
			dist, err := m.Predict(ctxSymbols)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dist.Empty() {
				fmt.Fprintf(out, "no data for context %q\n", markov.Join(ctxSymbols))
				return nil
			}
			if top > 0 && top < len(dist) {
				dist = dist[:top]
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range dist {
				fmt.Fprintf(w, "%.6f\t%q\n", p.Probability, string(p.Symbol))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "Number of symbols to print (0 prints all)")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		length      int
		temperature float64
		topK        int
		randSeed    uint64
	)
	cmd := &cobra.Command{
		Use:   "generate [seed text]",
		Short: "Sample text from a saved model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := markov.Load(a.cfg.Output)
			if err != nil {
				return err
			}
			opts := []markov.GenerateOption{
				markov.WithMaxLength(length),
				markov.WithTemperature(temperature),
				markov.WithTopK(topK),
			}
			if randSeed != 0 {
				opts = append(opts, markov.WithRand(rand.New(rand.NewPCG(randSeed, randSeed))))
			}
			if len(args) == 1 {
				seed, err := tokenize(a, args[0])
				if err != nil {
					return err
				}
				opts = append(opts, markov.WithSeed(seed))
			}

			return writeGenerated(cmd.Context(), cmd.OutOrStdout(), m, opts...)
		},
	}
	cmd.Flags().IntVar(&length, "length", 100, "Maximum number of symbols to generate")
	cmd.Flags().Float64Var(&temperature, "temperature", 1.0, "Sampling temperature (0 always picks the most frequent symbol)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Sample from the K most frequent symbols only (0 disables)")
	cmd.Flags().Uint64Var(&randSeed, "rand-seed", 0, "Random seed for reproducible output (0 picks one)")
	return cmd
}

func newPruneCmd(a *app) *cobra.Command {
	var (
		minFreq    uint64
		vocabulary bool
	)
	cmd := &cobra.Command{
		Use:   "prune <destination>",
		Short: "Write a copy of the model without rare transitions or symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := markov.Load(a.cfg.Output)
			if err != nil {
				return err
			}
			var pruned *markov.Model
			if vocabulary {
				pruned = m.PruneVocabulary(minFreq)
			} else {
				pruned = m.Prune(minFreq)
			}
			if err = pruned.Save(args[0]); err != nil {
				return err
			}
			a.logger.InfoContext(cmd.Context(), "Model pruned",
				slog.String("path", args[0]),
				slog.Uint64("min_freq", minFreq),
				slog.Int("contexts_before", m.Len()),
				slog.Int("contexts_after", pruned.Len()),
				slog.Int("vocabulary_before", m.VocabSize()),
				slog.Int("vocabulary_after", pruned.VocabSize()),
			)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&minFreq, "min-freq", 1, "Frequency threshold")
	cmd.Flags().BoolVar(&vocabulary, "vocabulary", false, "Remove symbols seen fewer than min-freq times instead of transitions")
	return cmd
}

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the effective configuration to a JSON config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "markov-trainer.json"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file %s already exists", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := WriteConfig(path, a.cfg); err != nil {
				return err
			}
			a.logger.InfoContext(cmd.Context(), "Config file written", slog.String("path", path))
			return nil
		},
	}
}

// writeGenerated streams generated text to w. The stream is cancelled when
// writing fails, so the generating goroutine never outlives the call.
func writeGenerated(ctx context.Context, w io.Writer, m *markov.Model, opts ...markov.GenerateOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := m.GenerateStream(ctx, opts...)
	if err != nil {
		return err
	}
	for sym := range stream {
		if _, err = fmt.Fprint(w, string(sym)); err != nil {
			return err
		}
	}
	if _, err = fmt.Fprintln(w); err != nil {
		return err
	}
	return ctx.Err()
}

// modelPath returns the model given as an argument, or the configured output.
func modelPath(a *app, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return a.cfg.Output
}

func tokenize(a *app, text string) ([]markov.Symbol, error) {
	tokenizer, err := a.cfg.NewTokenizer()
	if err != nil {
		return nil, err
	}
	return markov.Tokenize(tokenizer, strings.NewReader(text))
}

// contextOf tokenizes text and returns its last ContextSize symbols.
func contextOf(a *app, m *markov.Model, text string) ([]markov.Symbol, error) {
	symbols, err := tokenize(a, text)
	if err != nil {
		return nil, err
	}
	if len(symbols) < m.ContextSize() {
		return nil, fmt.Errorf("%w: %q has %d symbols, the model needs %d",
			markov.ErrContextLength, text, len(symbols), m.ContextSize())
	}
	return symbols[len(symbols)-m.ContextSize():], nil
}
