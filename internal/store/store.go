// Package store is the persistent side of a library: a metadata.db compatible
// SQLite file reached through a small statement oriented interface.
package store // import "github.com/Xunop/e-oasis-meta/internal/store"

import "database/sql"

// Conn is everything the writers and tables need from the backing store.
// All statements run inside one transaction that stays open until Commit or
// Rollback.
type Conn interface {
	// Execute runs stmt, which may hold several statements separated by ';'.
	// Positional arguments are handed to the statements in order.
	Execute(stmt string, args ...any) error
	// ExecuteMany runs stmt once per argument row.
	ExecuteMany(stmt string, rows [][]any) error
	// LastInsertRowID is the rowid of the last successful INSERT.
	LastInsertRowID() int
	// Query reads through the open transaction when there is one. The rows
	// must be closed before the next Execute.
	Query(stmt string, args ...any) (*sql.Rows, error)
	Commit() error
	Rollback() error
}
