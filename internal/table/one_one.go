package table

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/store"
)

// OneOne maps each book to one scalar, read from the books row or from a
// side table keyed by book.
type OneOne struct {
	field      *meta.Field
	BookColMap map[int]any
}

func NewOneOne(f *meta.Field) *OneOne {
	return &OneOne{field: f, BookColMap: make(map[int]any)}
}

func (t *OneOne) Field() *meta.Field { return t.field }

func (t *OneOne) Read(conn store.Conn) error {
	key := "book"
	if t.field.InBooks() {
		key = "id"
	}
	stmt := fmt.Sprintf("SELECT %s, %s FROM %s", key, t.field.Column, t.field.Table)
	m := make(map[int]any)
	err := each(conn, stmt, func(rows *sql.Rows) error {
		var (
			book int
			raw  any
		)
		if err := rows.Scan(&book, &raw); err != nil {
			return err
		}
		if v, ok := Convert(t.field.Datatype, raw); ok {
			m[book] = v
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.BookColMap = m
	return nil
}

// ReadBook loads the value of one book, e.g. right after its books row was
// inserted.
func (t *OneOne) ReadBook(conn store.Conn, book int) error {
	key := "book"
	if t.field.InBooks() {
		key = "id"
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s=?", t.field.Column, t.field.Table, key)
	rows, err := conn.Query(stmt, book)
	if err != nil {
		return err
	}
	defer rows.Close()
	delete(t.BookColMap, book)
	if rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		if v, ok := Convert(t.field.Datatype, raw); ok {
			t.BookColMap[book] = v
		}
	}
	return rows.Err()
}

func (t *OneOne) RemoveBooks(ids []int, _ store.Conn) ([]int, error) {
	for _, id := range ids {
		delete(t.BookColMap, id)
	}
	return nil, nil
}

func (t *OneOne) For(book int) any {
	return t.BookColMap[book]
}

// UUID is the uuid column plus the reverse lookup.
type UUID struct {
	*OneOne
	UUIDToID map[string]int
}

func NewUUID(f *meta.Field) *UUID {
	return &UUID{OneOne: NewOneOne(f), UUIDToID: make(map[string]int)}
}

func (t *UUID) Read(conn store.Conn) error {
	if err := t.OneOne.Read(conn); err != nil {
		return err
	}
	t.UUIDToID = make(map[string]int, len(t.BookColMap))
	for book, v := range t.BookColMap {
		t.UUIDToID[v.(string)] = book
	}
	return nil
}

func (t *UUID) ReadBook(conn store.Conn, book int) error {
	if old, ok := t.BookColMap[book].(string); ok {
		delete(t.UUIDToID, old)
	}
	if err := t.OneOne.ReadBook(conn, book); err != nil {
		return err
	}
	if u, ok := t.BookColMap[book].(string); ok {
		t.UUIDToID[u] = book
	}
	return nil
}

// Set records u as the uuid of book, dropping the previous mapping.
func (t *UUID) Set(book int, u string) {
	if old, ok := t.BookColMap[book].(string); ok {
		delete(t.UUIDToID, old)
	}
	t.UUIDToID[u] = book
}

func (t *UUID) RemoveBooks(ids []int, conn store.Conn) ([]int, error) {
	for _, id := range ids {
		if u, ok := t.BookColMap[id].(string); ok {
			delete(t.UUIDToID, u)
		}
	}
	return t.OneOne.RemoveBooks(ids, conn)
}

func (t *UUID) BookFor(u string) (int, bool) {
	id, ok := t.UUIDToID[u]
	return id, ok
}

// Formats lists the stored formats of each book from the data table.
type Formats struct {
	field      *meta.Field
	BookColMap map[int][]string
	FNameMap   map[int]map[string]string
	SizeMap    map[int]map[string]int64
}

func NewFormats(f *meta.Field) *Formats {
	return &Formats{
		field:      f,
		BookColMap: make(map[int][]string),
		FNameMap:   make(map[int]map[string]string),
		SizeMap:    make(map[int]map[string]int64),
	}
}

func (t *Formats) Field() *meta.Field { return t.field }

func (t *Formats) Read(conn store.Conn) error {
	books := make(map[int][]string)
	fnames := make(map[int]map[string]string)
	sizes := make(map[int]map[string]int64)
	err := each(conn, "SELECT book, format, name, uncompressed_size FROM data", func(rows *sql.Rows) error {
		var (
			book          int
			format, fname string
			size          int64
		)
		if err := rows.Scan(&book, &format, &fname, &size); err != nil {
			return err
		}
		format = strings.ToUpper(format)
		books[book] = append(books[book], format)
		if fnames[book] == nil {
			fnames[book] = make(map[string]string)
			sizes[book] = make(map[string]int64)
		}
		fnames[book][format] = fname
		sizes[book][format] = size
		return nil
	})
	if err != nil {
		return err
	}
	for _, fmts := range books {
		sort.Strings(fmts)
	}
	t.BookColMap, t.FNameMap, t.SizeMap = books, fnames, sizes
	return nil
}

func (t *Formats) RemoveBooks(ids []int, _ store.Conn) ([]int, error) {
	for _, id := range ids {
		delete(t.BookColMap, id)
		delete(t.FNameMap, id)
		delete(t.SizeMap, id)
	}
	return nil, nil
}

func (t *Formats) For(book int) any {
	fmts, ok := t.BookColMap[book]
	if !ok {
		return nil
	}
	return append([]string(nil), fmts...)
}

// FileName returns the stored file name (without extension) of a format.
func (t *Formats) FileName(book int, format string) (string, bool) {
	name, ok := t.FNameMap[book][strings.ToUpper(format)]
	return name, ok
}

// Size is the largest format size of each book.
type Size struct {
	*OneOne
}

func NewSize(f *meta.Field) *Size {
	return &Size{OneOne: NewOneOne(f)}
}

func (t *Size) Read(conn store.Conn) error {
	m := make(map[int]any)
	err := each(conn, "SELECT book, MAX(uncompressed_size) FROM data GROUP BY book", func(rows *sql.Rows) error {
		var (
			book int
			size int64
		)
		if err := rows.Scan(&book, &size); err != nil {
			return err
		}
		m[book] = float64(size)
		return nil
	})
	if err != nil {
		return err
	}
	t.BookColMap = m
	return nil
}
