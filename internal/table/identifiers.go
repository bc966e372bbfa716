package table

import (
	"database/sql"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
)

// Identifiers maps each book to its kind -> value identifiers. ColBookMap is
// keyed by kind.
type Identifiers struct {
	field      *meta.Field
	BookColMap map[int]map[string]string
	ColBookMap map[string]model.IDSet
}

func NewIdentifiers(f *meta.Field) *Identifiers {
	return &Identifiers{field: f, BookColMap: make(map[int]map[string]string), ColBookMap: make(map[string]model.IDSet)}
}

func (t *Identifiers) Field() *meta.Field { return t.field }

func (t *Identifiers) Read(conn store.Conn) error {
	books := make(map[int]map[string]string)
	kinds := make(map[string]model.IDSet)
	err := each(conn, "SELECT book, type, val FROM identifiers", func(rows *sql.Rows) error {
		var (
			book      int
			kind, val string
		)
		if err := rows.Scan(&book, &kind, &val); err != nil {
			return err
		}
		if books[book] == nil {
			books[book] = make(map[string]string)
		}
		books[book][kind] = val
		if kinds[kind] == nil {
			kinds[kind] = model.NewIDSet()
		}
		kinds[kind].Add(book)
		return nil
	})
	if err != nil {
		return err
	}
	t.BookColMap, t.ColBookMap = books, kinds
	return nil
}

// Set replaces the identifiers of book.
func (t *Identifiers) Set(book int, ids map[string]string) {
	for kind := range t.BookColMap[book] {
		if _, keep := ids[kind]; !keep {
			t.drop(kind, book)
		}
	}
	if len(ids) == 0 {
		delete(t.BookColMap, book)
		return
	}
	m := make(map[string]string, len(ids))
	for kind, val := range ids {
		m[kind] = val
		if t.ColBookMap[kind] == nil {
			t.ColBookMap[kind] = model.NewIDSet()
		}
		t.ColBookMap[kind].Add(book)
	}
	t.BookColMap[book] = m
}

func (t *Identifiers) drop(kind string, book int) {
	if s, ok := t.ColBookMap[kind]; ok {
		s.Discard(book)
		if len(s) == 0 {
			delete(t.ColBookMap, kind)
		}
	}
}

func (t *Identifiers) RemoveBooks(ids []int, _ store.Conn) ([]int, error) {
	for _, book := range ids {
		for kind := range t.BookColMap[book] {
			t.drop(kind, book)
		}
		delete(t.BookColMap, book)
	}
	return nil, nil
}

func (t *Identifiers) For(book int) any {
	ids, ok := t.BookColMap[book]
	if !ok {
		return nil
	}
	m := make(map[string]string, len(ids))
	for k, v := range ids {
		m[k] = v
	}
	return m
}

// BooksWith returns the books carrying an identifier of the given kind.
func (t *Identifiers) BooksWith(kind string) model.IDSet {
	return t.ColBookMap[kind].Clone()
}
