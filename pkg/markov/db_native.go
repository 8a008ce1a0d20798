//go:build !cgo_sqlite

package markov

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", dataSource)
}
