// Package library is the coordinating cache over one metadata.db: it owns the
// field tables and writers and serializes readers against the single writer.
package library // import "github.com/Xunop/e-oasis-meta/internal/library"

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Xunop/e-oasis-meta/internal/config"
	"github.com/Xunop/e-oasis-meta/internal/locking"
	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/storage"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
	"github.com/Xunop/e-oasis-meta/internal/worker"
	"github.com/Xunop/e-oasis-meta/internal/writer"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrNoSuchBook   = errors.New("no such book")
	ErrClosed       = errors.New("library is closed")

	// ErrInvalidColumn wraps the reason a custom column was refused.
	ErrInvalidColumn = errors.New("invalid custom column")
)

type Library struct {
	opts  *config.Options
	db    *store.DB
	files *storage.LocalStorage

	lock    *locking.SHLock
	records *locking.RecordLock[int]
	events  *worker.Dispatcher
	closed  atomic.Bool

	// Guarded by lock.
	fields  *meta.Fields
	tables  map[string]table.Table
	writers *writer.Set
}

// Open loads the library described by opts, creating and migrating its
// database as needed. opts become the active options of the process.
func Open(ctx context.Context, opts *config.Options) (*Library, error) {
	config.Use(opts)
	db, err := store.Open(opts.MetaDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	lock := locking.NewSHLock()
	l := &Library{
		opts:    opts,
		db:      db,
		files:   storage.NewLocalStorage(opts.LibraryPath),
		lock:    lock,
		records: locking.NewRecordLock[int](lock),
	}
	if err := l.load(); err != nil {
		db.Close()
		return nil, err
	}
	l.events = worker.NewDispatcher(opts.EventQueueSize)

	log.Info("Library opened",
		zap.String("db", opts.MetaDSN),
		zap.Int("books", len(l.bookIDs())),
		zap.Int("fields", len(l.tables)))
	return l, nil
}

// load reads field metadata and every table from the store.
func (l *Library) load() error {
	fields := meta.Standard()
	cols, err := loadCustomColumns(l.db)
	if err != nil {
		return err
	}
	for _, col := range cols {
		for _, f := range col.Fields() {
			fields.Add(f)
		}
	}

	tables := make(map[string]table.Table)
	for _, name := range fields.Names() {
		f, _ := fields.Get(name)
		t := table.New(f)
		if err := t.Read(l.db); err != nil {
			return errors.Wrapf(err, "failed to read field %s", name)
		}
		tables[name] = t
	}
	l.fields, l.tables, l.writers = fields, tables, writer.NewSet(tables)
	return nil
}

func loadCustomColumns(conn store.Conn) ([]meta.CustomColumn, error) {
	rows, err := conn.Query(`SELECT id, label, name, datatype, is_multiple, normalized, display, editable
		FROM custom_columns WHERE mark_for_delete=0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []meta.CustomColumn
	for rows.Next() {
		var (
			col      meta.CustomColumn
			datatype string
			display  string
		)
		if err := rows.Scan(&col.Num, &col.Label, &col.Name, &datatype,
			&col.IsMultiple, &col.Normalized, &display, &col.Editable); err != nil {
			return nil, err
		}
		col.Datatype = meta.Datatype(datatype)
		if !col.Datatype.Valid() {
			log.Warn("Skipping custom column with unknown datatype",
				zap.String("label", col.Label), zap.String("datatype", datatype))
			continue
		}
		col.Display = meta.ParseDisplay(display)
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Subscribe registers a listener for change events.
func (l *Library) Subscribe(ln worker.Listener) {
	l.events.Subscribe(ln)
}

// Close waits for running calls, delivers pending events and closes the
// store. Calls made after Close fail with ErrClosed.
func (l *Library) Close(ctx context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	_, owner := locking.WithOwner(ctx)
	g, err := l.lock.Hold(owner, false)
	if err != nil {
		return err
	}
	defer g.Release()
	l.events.Close()
	return l.db.Close()
}

// hold takes the library lock for the caller carried by ctx.
func (l *Library) hold(ctx context.Context, shared bool) (*locking.Guard, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, owner := locking.WithOwner(ctx)
	return l.lock.Hold(owner, shared)
}

func (l *Library) table(name string) (table.Table, error) {
	t, ok := l.tables[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownField, name)
	}
	return t, nil
}

func (l *Library) hasBook(book int) bool {
	_, ok := l.tables["id"].(*table.OneOne).BookColMap[book]
	return ok
}
