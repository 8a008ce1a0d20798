package markov

import (
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// trainString is a convenience helper that trains a rune-level model on text.
func trainString(t testing.TB, text string, contextSize int) *Model {
	t.Helper()
	m, err := Train(strings.NewReader(text), contextSize, NewRuneTokenizer())
	if err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return m
}

// trainWords trains a word-level model, whose contexts are easier to read in tests.
func trainWords(t testing.TB, text string, contextSize int) *Model {
	t.Helper()
	m, err := Train(strings.NewReader(text), contextSize, NewWordTokenizer())
	if err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return m
}

func symbols(parts ...string) []Symbol {
	out := make([]Symbol, len(parts))
	for i, p := range parts {
		out[i] = Symbol(p)
	}
	return out
}

// sumCounts adds up every count in the table.
func sumCounts(m *Model) uint64 {
	var sum uint64
	for _, e := range m.Entries() {
		for _, t := range e.Next {
			sum += t.Freq
		}
	}
	return sum
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
