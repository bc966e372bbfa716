package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/Xunop/e-oasis-meta/internal/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB is a Conn over one SQLite file.
type DB struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	tx     *sql.Tx
	lastID int
}

var _ Conn = (*DB)(nil)

// Open opens (creating if needed) the SQLite file at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	util.RegisterSQLFunctions()

	d, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// One connection keeps the open transaction visible to every query.
	d.SetMaxOpenConns(1)
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return &DB{db: d, path: path}, nil
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		if err := d.tx.Rollback(); err != nil {
			log.Warn("Failed to roll back on close", zap.Error(err))
		}
		d.tx = nil
	}
	return d.db.Close()
}

func (d *DB) begin() (*sql.Tx, error) {
	if d.tx != nil {
		return d.tx, nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	d.tx = tx
	return tx, nil
}

func (d *DB) exec(tx *sql.Tx, stmt string, args []any) error {
	log.SQL(stmt, args...)
	res, err := tx.Exec(stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to execute %q", strings.TrimSpace(stmt))
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "INSERT") {
		if id, err := res.LastInsertId(); err == nil {
			d.lastID = int(id)
		}
	}
	return nil
}

func (d *DB) Execute(stmt string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.begin()
	if err != nil {
		return err
	}

	parts := splitStatements(stmt)
	for _, part := range parts {
		n := countPlaceholders(part)
		if n > len(args) {
			return errors.Errorf("not enough arguments for %q", part)
		}
		if err := d.exec(tx, part, args[:n]); err != nil {
			return err
		}
		args = args[n:]
	}
	if len(args) != 0 {
		return errors.Errorf("%d unused arguments for %q", len(args), stmt)
	}
	return nil
}

func (d *DB) ExecuteMany(stmt string, rows [][]any) error {
	for _, args := range rows {
		if err := d.Execute(stmt, args...); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteScript runs a DDL script as is, without splitting it. Trigger bodies
// and other compound statements go through here.
func (d *DB) ExecuteScript(ctx context.Context, script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.begin()
	if err != nil {
		return err
	}
	log.SQL(script)
	if _, err := tx.ExecContext(ctx, script); err != nil {
		return errors.Wrap(err, "failed to execute script")
	}
	return nil
}

func (d *DB) LastInsertRowID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastID
}

func (d *DB) Query(stmt string, args ...any) (*sql.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	log.SQL(stmt, args...)
	var (
		rows *sql.Rows
		err  error
	)
	if d.tx != nil {
		rows, err = d.tx.Query(stmt, args...)
	} else {
		rows, err = d.db.Query(stmt, args...)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %q", strings.TrimSpace(stmt))
	}
	return rows, nil
}

func (d *DB) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit()
	d.tx = nil
	return errors.Wrap(err, "failed to commit")
}

func (d *DB) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback()
	d.tx = nil
	return errors.Wrap(err, "failed to roll back")
}

// splitStatements cuts stmt on ';' outside of quotes, dropping empty pieces.
func splitStatements(stmt string) []string {
	var (
		parts []string
		quote rune
		start int
	)
	for i, r := range stmt {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			if p := strings.TrimSpace(stmt[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	if p := strings.TrimSpace(stmt[start:]); p != "" {
		parts = append(parts, p)
	}
	return parts
}

func countPlaceholders(stmt string) int {
	var (
		n     int
		quote rune
	)
	for _, r := range stmt {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?':
			n++
		}
	}
	return n
}
