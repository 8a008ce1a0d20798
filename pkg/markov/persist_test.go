package markov

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// binaryModel has symbols that are not valid UTF-8 on their own.
func binaryModel(t *testing.T) *Model {
	t.Helper()
	m := trainString(t, "ab\xffab\xff\x00c\xfe\xffab", 2)
	if _, ok := m.ID("\xff"); !ok {
		t.Fatal("setup: expected a single byte symbol")
	}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"model.json", "model.db", "model"} {
		t.Run(name, func(t *testing.T) {
			m := binaryModel(t)
			path := filepath.Join(t.TempDir(), name)

			if err := m.Save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if !loaded.Equal(m) {
				t.Errorf("loaded model differs: %v vs %v", loaded, m)
			}

			want, _ := m.Predict(symbols("a", "b"))
			got, _ := loaded.Predict(symbols("a", "b"))
			if len(got) != len(want) {
				t.Fatalf("Predict after load = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("prediction %d = %v, want %v", i, got[i], want[i])
				}
			}

			// Only the artifact is left behind.
			entries, _ := os.ReadDir(filepath.Dir(path))
			if len(entries) != 1 {
				t.Errorf("expected only the artifact in the directory, found %d entries", len(entries))
			}
		})
	}
}

func TestFormatForPath(t *testing.T) {
	testCases := map[string]string{
		"model.json":     "json",
		"MODEL.JSON":     "json",
		"model.db":       "sqlite",
		"model.sqlite":   "sqlite",
		"dir.json/model": "sqlite",
	}
	for path, want := range testCases {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	for _, name := range []string{"model.json", "model.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := trainString(t, "first model", 1).Save(path); err != nil {
				t.Fatal(err)
			}
			second := trainString(t, "the second one", 2)
			if err := second.Save(path); err != nil {
				t.Fatalf("second Save failed: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if !loaded.Equal(second) {
				t.Error("expected the second model after overwriting")
			}
		})
	}
}

func TestSaveToMissingDirectory(t *testing.T) {
	for _, name := range []string{"model.json", "model.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing", name)
			err := trainString(t, "abc", 1).Save(path)

			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PersistenceError, got %v", err)
			}
			if perr.Op != "save" || perr.Path != path {
				t.Errorf("unexpected error fields: %+v", perr)
			}
			if !errors.Is(err, ErrPersistence) {
				t.Error("expected the error to match ErrPersistence")
			}
			if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
				t.Errorf("no artifact should exist after a failed save, stat error: %v", statErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.db"))
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected a persistence error wrapping ErrNotExist, got %v", err)
	}
	if errors.Is(err, ErrCorruptArtifact) {
		t.Error("a missing file is not a corrupt artifact")
	}
}

func TestExportIsDeterministic(t *testing.T) {
	m := trainWords(t, fishText, 2)
	var a, b bytes.Buffer
	if err := m.Export(&a); err != nil {
		t.Fatal(err)
	}
	if err := m.Export(&b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("exporting the same model twice produced different bytes")
	}
	imported, err := Import(&a)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !imported.Equal(m) {
		t.Error("imported model differs from the exported one")
	}
}

func TestImportCorrupt(t *testing.T) {
	var buf bytes.Buffer
	if err := trainString(t, "abcabd", 2).Export(&buf); err != nil {
		t.Fatal(err)
	}
	var valid ExportedModel
	if err := json.Unmarshal(buf.Bytes(), &valid); err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name   string
		mutate func(e *ExportedModel)
	}{
		{"wrong format", func(e *ExportedModel) { e.Format = "something-else" }},
		{"wrong version", func(e *ExportedModel) { e.Version = 99 }},
		{"zero context size", func(e *ExportedModel) { e.ContextSize = 0 }},
		{"total mismatch", func(e *ExportedModel) { e.Total++ }},
		{"duplicate symbol", func(e *ExportedModel) { e.Vocabulary[1] = e.Vocabulary[0] }},
		{"unquoted symbol", func(e *ExportedModel) { e.Vocabulary[0] = "a" }},
		{"unknown prefix", func(e *ExportedModel) { e.Chains[0].PrefixID = 1000 }},
		{"unknown next symbol", func(e *ExportedModel) { e.Chains[0].NextTokenID = 1000 }},
		{"zero frequency", func(e *ExportedModel) {
			e.Total -= e.Chains[0].Frequency
			e.Chains[0].Frequency = 0
		}},
		{"short prefix", func(e *ExportedModel) {
			for text, id := range e.Prefixes {
				delete(e.Prefixes, text)
				e.Prefixes["0"] = id
				break
			}
		}},
		{"non-canonical prefix", func(e *ExportedModel) {
			for text, id := range e.Prefixes {
				delete(e.Prefixes, text)
				e.Prefixes[" "+text] = id
				break
			}
		}},
		{"prefix without chains", func(e *ExportedModel) { e.Prefixes["1 1"] = 1000 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var e ExportedModel
			_ = json.Unmarshal(buf.Bytes(), &e)
			tc.mutate(&e)
			data, _ := json.Marshal(e)
			if _, err := Import(bytes.NewReader(data)); !errors.Is(err, ErrCorruptArtifact) {
				t.Errorf("expected ErrCorruptArtifact, got %v", err)
			}
		})
	}

	if _, err := Import(strings.NewReader("{not json")); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for malformed json, got %v", err)
	}
}

func TestLoadCorruptSQLite(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.db")
	content := append([]byte(sqliteHeader), bytes.Repeat([]byte{0xAB}, 4096)...)
	if err := os.WriteFile(garbage, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(garbage); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for a damaged database, got %v", err)
	}

	// A valid database that is not a model.
	foreign := filepath.Join(dir, "foreign.db")
	db, err := openDB(foreign)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = db.Exec(`CREATE TABLE unrelated (a INTEGER);`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()
	if _, err := Load(foreign); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for a foreign database, got %v", err)
	}

	// A model whose total was tampered with.
	tampered := filepath.Join(dir, "tampered.db")
	if err := trainString(t, "abcabc", 1).Save(tampered); err != nil {
		t.Fatal(err)
	}
	db, err = openDB(tampered)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = db.Exec(`UPDATE markov_meta SET value = '1' WHERE key = 'total';`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()
	if _, err := Load(tampered); !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("expected ErrCorruptArtifact for a tampered total, got %v", err)
	}
}
