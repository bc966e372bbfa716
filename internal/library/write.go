package library

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/storage"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
	"github.com/Xunop/e-oasis-meta/internal/util"
	"github.com/Xunop/e-oasis-meta/internal/validator"
)

// write runs fn under the exclusive lock and commits. On failure the store
// transaction is rolled back and the tables are reloaded, so memory never
// holds state the store lost. The event is pushed after the lock is released.
func (l *Library) write(ctx context.Context, fn func() (*model.Event, error)) error {
	g, err := l.hold(ctx, false)
	if err != nil {
		return err
	}
	defer g.Release()

	ev, err := fn()
	if err == nil {
		err = l.db.Commit()
	}
	if err != nil {
		if !errors.Is(err, ErrUnknownField) && !errors.Is(err, ErrInvalidColumn) {
			l.recoverFrom(err)
		}
		return err
	}
	g.Release()
	if ev != nil {
		l.events.Push(*ev)
	}
	return nil
}

func (l *Library) recoverFrom(cause error) {
	log.Error("Write failed, reloading tables", zap.Error(cause))
	if err := l.db.Rollback(); err != nil {
		log.Error("Failed to roll back", zap.Error(err))
	}
	if err := l.load(); err != nil {
		log.Error("Failed to reload tables", zap.Error(err))
	}
}

// SetField writes one field for many books and returns the books whose stored
// state changed. Values the field cannot take and unknown books are skipped.
// Changed books get a new last_modified and are marked dirtied.
func (l *Library) SetField(ctx context.Context, name string, vals map[int]any, allowCaseChange bool) (model.IDSet, error) {
	var dirtied model.IDSet
	err := l.write(ctx, func() (*model.Event, error) {
		w, ok := l.writers.Writer(name)
		if !ok {
			return nil, errors.Wrap(ErrUnknownField, name)
		}
		known := make(map[int]any, len(vals))
		for b, v := range vals {
			if !l.hasBook(b) {
				log.Debug("Skipping value for unknown book", zap.String("field", name), zap.Int("book", b))
				continue
			}
			known[b] = v
		}

		var err error
		dirtied, err = w.SetBooks(l.db, known, allowCaseChange)
		if err != nil {
			return nil, err
		}
		if len(dirtied) == 0 {
			return nil, nil
		}
		if err := l.markDirtied(dirtied, name != "last_modified"); err != nil {
			return nil, err
		}
		return &model.Event{Type: model.EventMetadataChanged, Field: name, BookIDs: dirtied.Sorted()}, nil
	})
	if err != nil {
		return nil, err
	}
	return dirtied, nil
}

func (l *Library) markDirtied(books model.IDSet, touch bool) error {
	ids := books.Sorted()
	if touch {
		now := time.Now().UTC()
		vals := make(map[int]any, len(ids))
		for _, b := range ids {
			vals[b] = now
		}
		w, _ := l.writers.Writer("last_modified")
		if _, err := w.SetBooks(l.db, vals, false); err != nil {
			return err
		}
	}
	rows := make([][]any, 0, len(ids))
	for _, b := range ids {
		rows = append(rows, []any{b})
	}
	return l.db.ExecuteMany("INSERT OR IGNORE INTO metadata_dirtied(book) VALUES (?)", rows)
}

// ClearDirtied forgets that books were changed.
func (l *Library) ClearDirtied(ctx context.Context, ids []int) error {
	return l.write(ctx, func() (*model.Event, error) {
		rows := make([][]any, 0, len(ids))
		for _, b := range ids {
			rows = append(rows, []any{b})
		}
		return nil, l.db.ExecuteMany("DELETE FROM metadata_dirtied WHERE book=?", rows)
	})
}

type bookReader interface {
	ReadBook(conn store.Conn, book int) error
}

// AddBook creates a book and returns its id.
func (l *Library) AddBook(ctx context.Context, title string, authors []string) (int, error) {
	var id int
	err := l.write(ctx, func() (*model.Event, error) {
		if err := l.db.Execute("INSERT INTO books DEFAULT VALUES"); err != nil {
			return nil, err
		}
		id = l.db.LastInsertRowID()
		if err := l.readBook(id); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		writes := []struct {
			field string
			val   any
		}{
			{"title", title},
			{"authors", authors},
			{"timestamp", now},
			{"last_modified", now},
			{"uuid", util.UUID4()},
		}
		for _, wr := range writes {
			w, _ := l.writers.Writer(wr.field)
			if _, err := w.SetBooks(l.db, map[int]any{id: wr.val}, false); err != nil {
				return nil, err
			}
		}

		author := ""
		if names := l.strs("authors", id); len(names) > 0 {
			author = names[0]
		}
		dir := storage.BookDir(author, l.str("title", id), id)
		if err := l.db.Execute("UPDATE books SET path=? WHERE id=?", dir, id); err != nil {
			return nil, err
		}
		if err := l.tables["path"].(bookReader).ReadBook(l.db, id); err != nil {
			return nil, err
		}
		log.Info("Book added", zap.Int("id", id), zap.String("path", dir))
		return &model.Event{Type: model.EventBooksAdded, BookIDs: []int{id}}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// readBook loads the books row of a new book into the books column tables.
func (l *Library) readBook(id int) error {
	for _, t := range l.tables {
		if !t.Field().InBooks() {
			continue
		}
		if r, ok := t.(bookReader); ok {
			if err := r.ReadBook(l.db, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveBooks deletes books with their links and drops values no book uses
// any more. It returns the books that existed.
func (l *Library) RemoveBooks(ctx context.Context, ids []int) ([]int, error) {
	var removed []int
	err := l.write(ctx, func() (*model.Event, error) {
		removed = nil
		seen := model.NewIDSet()
		for _, b := range ids {
			if l.hasBook(b) && !seen.Has(b) {
				seen.Add(b)
				removed = append(removed, b)
			}
		}
		if len(removed) == 0 {
			return nil, nil
		}
		rows := make([][]any, 0, len(removed))
		for _, b := range removed {
			rows = append(rows, []any{b})
		}
		if err := l.db.ExecuteMany("DELETE FROM books WHERE id=?", rows); err != nil {
			return nil, err
		}
		for _, name := range l.fields.Names() {
			gone, err := l.tables[name].RemoveBooks(removed, l.db)
			if err != nil {
				return nil, err
			}
			if len(gone) > 0 {
				log.Debug("Removed unused values", zap.String("field", name), zap.Ints("ids", gone))
			}
		}
		return &model.Event{Type: model.EventBooksRemoved, BookIDs: seen.Sorted()}, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CreateCustomColumn adds a user defined field. The field is named
// "#"+label; a series column also gets "#"+label+"_index".
func (l *Library) CreateCustomColumn(ctx context.Context, label, name string, dt meta.Datatype, isMultiple bool, display meta.Display) (*meta.Field, error) {
	var created *meta.Field
	err := l.write(ctx, func() (*model.Event, error) {
		col := meta.CustomColumn{
			Label:      label,
			Name:       name,
			Datatype:   dt,
			IsMultiple: isMultiple,
			Normalized: meta.IsNormalized(dt),
			Editable:   true,
			Display:    display,
		}
		if err := validator.ValidateCustomColumnCreateRequest(l.fields, &col); err != nil {
			return nil, errors.Wrap(ErrInvalidColumn, err.Error())
		}
		err := l.db.Execute(`INSERT INTO custom_columns(label,name,datatype,is_multiple,normalized,display,editable)
			VALUES (?,?,?,?,?,?,?)`,
			col.Label, col.Name, string(col.Datatype), col.IsMultiple, col.Normalized, col.DisplayJSON(), col.Editable)
		if err != nil {
			return nil, err
		}
		col.Num = l.db.LastInsertRowID()
		for _, stmt := range col.CreateStatements() {
			if err := l.db.ExecuteScript(ctx, stmt); err != nil {
				return nil, err
			}
		}
		for _, f := range col.Fields() {
			t := table.New(f)
			if err := t.Read(l.db); err != nil {
				return nil, err
			}
			l.fields.Add(f)
			l.writers.Add(t)
		}
		created, _ = l.fields.Get("#" + label)
		log.Info("Custom column created", zap.String("label", label), zap.Int("num", col.Num))
		return &model.Event{Type: model.EventFieldCreated, Field: created.Name}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
