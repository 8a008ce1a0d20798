package markov

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	// ArtifactFormat identifies model artifacts written by this package.
	ArtifactFormat = "markov-trainer"
	// ArtifactVersion is the artifact layout version.
	ArtifactVersion = 1

	sqliteHeader = "SQLite format 3\x00"
)

// ExportedModel is the serializable representation of a trained model,
// used for the JSON artifact.
type ExportedModel struct {
	Format      string          `json:"format"`
	Version     int             `json:"version"`
	ContextSize int             `json:"context_size"`
	Vocabulary  []string        `json:"vocabulary"` // token_id -> quoted token_text
	Prefixes    map[string]int  `json:"prefixes"`   // prefix_text -> prefix_id
	Chains      []ExportedChain `json:"chains"`
	Total       uint64          `json:"total"`
}

// ExportedChain is the serializable representation of a single link
// in a Markov chain, used within an ExportedModel.
type ExportedChain struct {
	PrefixID    int    `json:"prefix_id"`
	NextTokenID int    `json:"next_token_id"`
	Frequency   uint64 `json:"frequency"`
}

// Save writes the model to path. Paths ending in ".json" get the JSON
// artifact, anything else a SQLite database. The artifact is written to a
// temporary file next to path and moved into place only once complete, so a
// failed save never leaves a partial artifact at path. Failures are
// returned as a *PersistenceError.
func (m *Model) Save(path string) error {
	var err error
	if FormatForPath(path) == "json" {
		err = m.saveJSON(path)
	} else {
		err = m.saveSQLite(path)
	}
	if err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// Load reads a model written by Save. The format is detected from the file
// contents. Failures are returned as a *PersistenceError; artifacts that are
// readable but inconsistent also match ErrCorruptArtifact.
func Load(path string) (*Model, error) {
	m, err := load(path)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	return m, nil
}

func load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	header := make([]byte, len(sqliteHeader))
	n, _ := io.ReadFull(f, header)
	if n == len(header) && string(header) == sqliteHeader {
		return loadSQLite(path)
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return Import(bufio.NewReader(f))
}

func (m *Model) saveJSON(path string) error {
	var buf bytes.Buffer
	if err := m.Export(&buf); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}

// Export serializes the model as JSON to w. Prefix ids follow the order of
// Entries, so exporting the same model twice yields identical bytes.
func (m *Model) Export(w io.Writer) error {
	exported := ExportedModel{
		Format:      ArtifactFormat,
		Version:     ArtifactVersion,
		ContextSize: m.contextSize,
		Vocabulary:  make([]string, 0, m.vocab.Len()),
		Prefixes:    make(map[string]int, len(m.chains)),
		Chains:      make([]ExportedChain, 0, len(m.chains)),
		Total:       m.total,
	}
	for _, sym := range m.vocab.symbols {
		exported.Vocabulary = append(exported.Vocabulary, strconv.Quote(string(sym)))
	}

	var keyBuf []byte
	for prefixID, e := range m.Entries() {
		keyBuf = appendKey(keyBuf[:0], e.Context)
		exported.Prefixes[string(keyBuf)] = prefixID
		for _, t := range e.Next {
			exported.Chains = append(exported.Chains, ExportedChain{
				PrefixID:    prefixID,
				NextTokenID: t.Id,
				Frequency:   t.Freq,
			})
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a JSON model written by Export.
func Import(r io.Reader) (*Model, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, corrupt("failed to decode json model: %v", err)
	}
	if imported.Format != ArtifactFormat {
		return nil, corrupt("unknown format %q", imported.Format)
	}
	if imported.Version != ArtifactVersion {
		return nil, corrupt("unsupported version %d", imported.Version)
	}

	symbols := make([]Symbol, 0, len(imported.Vocabulary))
	for id, quoted := range imported.Vocabulary {
		text, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, corrupt("vocabulary entry %d: %v", id, err)
		}
		symbols = append(symbols, Symbol(text))
	}

	prefixes := make(map[int]string, len(imported.Prefixes))
	for text, id := range imported.Prefixes {
		if _, dup := prefixes[id]; dup {
			return nil, corrupt("prefix id %d used twice", id)
		}
		prefixes[id] = text
	}

	return assemble(imported.ContextSize, symbols, prefixes, imported.Chains, imported.Total)
}

// assemble checks decoded artifact contents against every model invariant
// and builds the model. Any violation is reported as ErrCorruptArtifact.
func assemble(contextSize int, symbols []Symbol, prefixes map[int]string, chains []ExportedChain, total uint64) (*Model, error) {
	if contextSize <= 0 {
		return nil, corrupt("context size %d", contextSize)
	}

	vocab := NewVocabulary()
	for id, sym := range symbols {
		if vocab.Intern(sym) != id {
			return nil, corrupt("symbol %q appears twice in vocabulary", sym)
		}
	}

	ids := make([]int, 0, contextSize)
	var keyBuf []byte
	for prefixID, text := range prefixes {
		var ok bool
		if ids, ok = parseKey(text, ids); !ok || len(ids) != contextSize {
			return nil, corrupt("prefix %d %q is not %d symbol ids", prefixID, text, contextSize)
		}
		for _, id := range ids {
			if id >= len(symbols) {
				return nil, corrupt("prefix %d references unknown symbol %d", prefixID, id)
			}
		}
		// Keys must be canonical, otherwise lookups would miss them.
		if keyBuf = appendKey(keyBuf[:0], ids); string(keyBuf) != text {
			return nil, corrupt("prefix %d %q is not canonical", prefixID, text)
		}
	}

	table := make(map[string]map[int]uint64, len(prefixes))
	var sum uint64
	for _, c := range chains {
		text, ok := prefixes[c.PrefixID]
		if !ok {
			return nil, corrupt("chain references unknown prefix %d", c.PrefixID)
		}
		if c.NextTokenID < 0 || c.NextTokenID >= len(symbols) {
			return nil, corrupt("chain references unknown symbol %d", c.NextTokenID)
		}
		if c.Frequency == 0 || c.Frequency > MaxCount || sum > MaxCount-c.Frequency {
			return nil, corrupt("frequency %d out of range", c.Frequency)
		}
		nexts := table[text]
		if nexts == nil {
			nexts = make(map[int]uint64)
			table[text] = nexts
		}
		if _, dup := nexts[c.NextTokenID]; dup {
			return nil, corrupt("duplicate chain %d -> %d", c.PrefixID, c.NextTokenID)
		}
		nexts[c.NextTokenID] = c.Frequency
		sum += c.Frequency
	}
	if len(table) != len(prefixes) {
		return nil, corrupt("%d prefixes have no chains", len(prefixes)-len(table))
	}
	if sum != total {
		return nil, corrupt("total %d does not match sum of frequencies %d", total, sum)
	}

	chainTokens := make(map[string][]ChainToken, len(table))
	for key, nexts := range table {
		chainTokens[key] = sortedTokens(nexts)
	}
	return &Model{
		contextSize: contextSize,
		vocab:       vocab,
		chains:      chainTokens,
		total:       total,
	}, nil
}

// FormatForPath returns the artifact format Save uses for path: "json" or "sqlite".
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "sqlite"
}

// String describes the model briefly, for logs.
func (m *Model) String() string {
	return fmt.Sprintf("markov.Model{context_size=%d vocab=%d contexts=%d total=%d}",
		m.contextSize, m.vocab.Len(), len(m.chains), m.total)
}
