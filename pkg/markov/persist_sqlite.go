package markov

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/natefinch/atomic"
	"go.uber.org/multierr"
)

const (
	schemaMeta = `
CREATE TABLE IF NOT EXISTS markov_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text BLOB NOT NULL UNIQUE
);
`
	schemaPrefixes = `
CREATE TABLE IF NOT EXISTS markov_prefixes (
	prefix_id INTEGER PRIMARY KEY,
	prefix_text TEXT NOT NULL UNIQUE
);
`
	schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    prefix_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (prefix_id, next_token_id)
);
`
)

// saveSQLite builds the database in a temporary file in the destination
// directory and renames it over path once it is complete.
func (m *Model) saveSQLite(path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if err = tmp.Close(); err != nil {
		return err
	}

	db, err := openDB(tmpName)
	if err != nil {
		return err
	}
	// One connection, so the pragmas below apply to the writing transaction.
	db.SetMaxOpenConns(1)
	if err = m.writeSQLite(db); err != nil {
		return multierr.Append(err, db.Close())
	}
	if err = db.Close(); err != nil {
		return err
	}
	return atomic.ReplaceFile(tmpName, path)
}

func (m *Model) writeSQLite(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode = MEMORY;`); err != nil {
		return fmt.Errorf("could not set journal mode: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaMeta, schemaVocab, schemaPrefixes, schemaChains} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	meta := map[string]string{
		"format":       ArtifactFormat,
		"version":      strconv.Itoa(ArtifactVersion),
		"context_size": strconv.Itoa(m.contextSize),
		"total":        strconv.FormatUint(m.total, 10),
	}
	for key, value := range meta {
		if _, err = tx.Exec(`INSERT INTO markov_meta (key, value) VALUES (?, ?);`, key, value); err != nil {
			return fmt.Errorf("could not insert metadata %q: %w", key, err)
		}
	}

	stmtInsertVocab, err := tx.Prepare(`INSERT INTO markov_vocabulary (token_id, token_text) VALUES (?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare vocabulary insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertVocab)
	for id, sym := range m.vocab.symbols {
		if _, err = stmtInsertVocab.Exec(id, []byte(sym)); err != nil {
			return fmt.Errorf("sql insert vocabulary error for token %d: %w", id, err)
		}
	}

	stmtInsertPrefix, err := tx.Prepare(`INSERT INTO markov_prefixes (prefix_id, prefix_text) VALUES (?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare prefix insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertPrefix)
	stmtInsertChain, err := tx.Prepare(`INSERT INTO markov_chains (prefix_id, next_token_id, frequency) VALUES (?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	var keyBuf []byte
	for prefixID, e := range m.Entries() {
		keyBuf = appendKey(keyBuf[:0], e.Context)
		if _, err = stmtInsertPrefix.Exec(prefixID, string(keyBuf)); err != nil {
			return fmt.Errorf("failed to insert prefix '%s': %w", keyBuf, err)
		}
		for _, t := range e.Next {
			if _, err = stmtInsertChain.Exec(prefixID, t.Id, int64(t.Freq)); err != nil {
				return fmt.Errorf("failed to insert chain link (%d -> %d): %w", prefixID, t.Id, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

func loadSQLite(path string) (m *Model, err error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer func(db *sql.DB) {
		if cerr := db.Close(); cerr != nil && err == nil {
			m, err = nil, cerr
		}
	}(db)

	meta := make(map[string]string)
	rows, err := db.Query(`SELECT key, value FROM markov_meta;`)
	if err != nil {
		return nil, corrupt("could not read metadata: %v", err)
	}
	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			_ = rows.Close()
			return nil, corrupt("could not scan metadata: %v", err)
		}
		meta[key] = value
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, corrupt("error after iterating metadata rows: %v", err)
	}

	if meta["format"] != ArtifactFormat {
		return nil, corrupt("unknown format %q", meta["format"])
	}
	if meta["version"] != strconv.Itoa(ArtifactVersion) {
		return nil, corrupt("unsupported version %q", meta["version"])
	}
	contextSize, err := strconv.Atoi(meta["context_size"])
	if err != nil {
		return nil, corrupt("context size %q: %v", meta["context_size"], err)
	}
	total, err := strconv.ParseUint(meta["total"], 10, 64)
	if err != nil {
		return nil, corrupt("total %q: %v", meta["total"], err)
	}

	var symbols []Symbol
	vRows, err := db.Query(`SELECT token_id, token_text FROM markov_vocabulary ORDER BY token_id;`)
	if err != nil {
		return nil, corrupt("could not read vocabulary: %v", err)
	}
	for vRows.Next() {
		var id int
		var text []byte
		if err = vRows.Scan(&id, &text); err != nil {
			_ = vRows.Close()
			return nil, corrupt("could not scan vocabulary: %v", err)
		}
		if id != len(symbols) {
			_ = vRows.Close()
			return nil, corrupt("vocabulary ids are not dense at %d", id)
		}
		symbols = append(symbols, Symbol(text))
	}
	_ = vRows.Close()
	if err = vRows.Err(); err != nil {
		return nil, corrupt("error after iterating vocabulary rows: %v", err)
	}

	prefixes := make(map[int]string)
	pRows, err := db.Query(`SELECT prefix_id, prefix_text FROM markov_prefixes;`)
	if err != nil {
		return nil, corrupt("could not read prefixes: %v", err)
	}
	for pRows.Next() {
		var id int
		var text string
		if err = pRows.Scan(&id, &text); err != nil {
			_ = pRows.Close()
			return nil, corrupt("could not scan prefix: %v", err)
		}
		prefixes[id] = text
	}
	_ = pRows.Close()
	if err = pRows.Err(); err != nil {
		return nil, corrupt("error after iterating prefix rows: %v", err)
	}

	var chains []ExportedChain
	cRows, err := db.Query(`SELECT prefix_id, next_token_id, frequency FROM markov_chains;`)
	if err != nil {
		return nil, corrupt("could not read chains: %v", err)
	}
	for cRows.Next() {
		var c ExportedChain
		var freq int64
		if err = cRows.Scan(&c.PrefixID, &c.NextTokenID, &freq); err != nil {
			_ = cRows.Close()
			return nil, corrupt("could not scan chain: %v", err)
		}
		if freq <= 0 {
			_ = cRows.Close()
			return nil, corrupt("frequency %d out of range", freq)
		}
		c.Frequency = uint64(freq)
		chains = append(chains, c)
	}
	_ = cRows.Close()
	if err = cRows.Err(); err != nil {
		return nil, corrupt("error after iterating chain rows: %v", err)
	}

	return assemble(contextSize, symbols, prefixes, chains, total)
}
