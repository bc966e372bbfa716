// Package table holds the in-memory view of every field: which value each book
// has and, for many-* fields, which books share a value.
package table // import "github.com/Xunop/e-oasis-meta/internal/table"

import (
	"database/sql"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
)

// Table is the in-memory state of one field.
type Table interface {
	Field() *meta.Field
	// Read replaces the table contents with what the store holds.
	Read(conn store.Conn) error
	// RemoveBooks forgets books and deletes value rows no book refers to any
	// more. It returns the deleted value-ids.
	RemoveBooks(ids []int, conn store.Conn) ([]int, error)
	// For returns the canonical value the book has, or nil.
	For(book int) any
}

// ItemTable is a table whose values are rows of a value table.
type ItemTable interface {
	Table
	IDsFor(book int) []int
	BooksFor(item int) model.IDSet
	// Items returns a copy of the value-id to value map.
	Items() map[int]any
}

// New returns an empty table for f.
func New(f *meta.Field) Table {
	if f.Datatype == meta.Composite || f.Name == "news" {
		return &Composite{field: f}
	}
	switch f.Name {
	case "uuid":
		return NewUUID(f)
	case "formats":
		return NewFormats(f)
	case "size":
		return NewSize(f)
	case "identifiers":
		return NewIdentifiers(f)
	case "authors":
		return NewAuthors(f)
	}
	switch f.Kind {
	case meta.ManyOne:
		return NewManyOne(f)
	case meta.ManyMany:
		return NewManyMany(f)
	}
	return NewOneOne(f)
}

// Convert turns a raw column value into the canonical form for dt.
func Convert(dt meta.Datatype, raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	switch dt {
	case meta.Datetime:
		t, ok := store.ParseTime(raw)
		if !ok {
			return nil, false
		}
		return t, true
	case meta.Int, meta.Rating:
		return store.ParseInt(raw)
	case meta.Float:
		return store.ParseFloat(raw)
	case meta.Bool:
		n, ok := store.ParseInt(raw)
		if !ok {
			return nil, false
		}
		return n != 0, true
	}
	return store.ParseString(raw)
}

func each(conn store.Conn, stmt string, fn func(rows *sql.Rows) error) error {
	rows, err := conn.Query(stmt)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Composite fields are computed elsewhere and store nothing.
type Composite struct {
	field *meta.Field
}

func (t *Composite) Field() *meta.Field                              { return t.field }
func (t *Composite) Read(store.Conn) error                           { return nil }
func (t *Composite) RemoveBooks([]int, store.Conn) ([]int, error)    { return nil, nil }
func (t *Composite) For(int) any                                     { return nil }
