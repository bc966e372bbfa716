package table

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/util"
)

// Key is the identity of a value when deciding whether two inputs refer to
// the same value-id: the locale lower case form for case insensitive fields.
func Key(f *meta.Field, v any) any {
	if s, ok := v.(string); ok && f.CaseInsensitive() {
		return util.Lower(s)
	}
	return v
}

// items is the value side of a many-* field.
type items struct {
	field *meta.Field
	// IDMap holds display strings, or int64 ratings.
	IDMap      map[int]any
	ColBookMap map[int]model.IDSet
}

func newItems(f *meta.Field) items {
	return items{field: f, IDMap: make(map[int]any), ColBookMap: make(map[int]model.IDSet)}
}

func (t *items) Field() *meta.Field { return t.field }

func (t *items) readIDMap(conn store.Conn) error {
	stmt := fmt.Sprintf("SELECT id, %s FROM %s", t.field.Column, t.field.Table)
	m := make(map[int]any)
	err := each(conn, stmt, func(rows *sql.Rows) error {
		var (
			id  int
			raw any
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		v, ok := Convert(t.field.Datatype, raw)
		if !ok {
			return nil
		}
		// A zero rating means no rating.
		if n, isInt := v.(int64); isInt && t.field.Datatype == meta.Rating && n == 0 {
			return nil
		}
		m[id] = v
		return nil
	})
	if err != nil {
		return err
	}
	t.IDMap = m
	t.ColBookMap = make(map[int]model.IDSet, len(m))
	return nil
}

func (t *items) link(item, book int) {
	s, ok := t.ColBookMap[item]
	if !ok {
		s = model.NewIDSet()
		t.ColBookMap[item] = s
	}
	s.Add(book)
}

func (t *items) unlink(item, book int) {
	if s, ok := t.ColBookMap[item]; ok {
		s.Discard(book)
	}
}

// Orphans returns the value-ids no book refers to.
func (t *items) Orphans() []int {
	var out []int
	for id := range t.IDMap {
		if len(t.ColBookMap[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Purge deletes value rows and forgets them.
func (t *items) Purge(ids []int, conn store.Conn) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []any{id})
		delete(t.IDMap, id)
		delete(t.ColBookMap, id)
	}
	return conn.ExecuteMany(fmt.Sprintf("DELETE FROM %s WHERE id=?", t.field.Table), rows)
}

func (t *items) BooksFor(item int) model.IDSet {
	return t.ColBookMap[item].Clone()
}

func (t *items) Items() map[int]any {
	m := make(map[int]any, len(t.IDMap))
	for k, v := range t.IDMap {
		m[k] = v
	}
	return m
}

// caseGroups returns, for each set of value-ids that collide under Key,
// the lowest id and the others.
func (t *items) caseGroups() map[int][]int {
	byKey := make(map[any][]int)
	for id, v := range t.IDMap {
		k := Key(t.field, v)
		byKey[k] = append(byKey[k], id)
	}
	groups := make(map[int][]int)
	for _, ids := range byKey {
		if len(ids) < 2 {
			continue
		}
		sort.Ints(ids)
		groups[ids[0]] = ids[1:]
	}
	return groups
}

// ManyOne links each book to at most one value.
type ManyOne struct {
	items
	BookColMap map[int]int
}

func NewManyOne(f *meta.Field) *ManyOne {
	return &ManyOne{items: newItems(f), BookColMap: make(map[int]int)}
}

func (t *ManyOne) Read(conn store.Conn) error {
	if err := t.readIDMap(conn); err != nil {
		return err
	}
	t.BookColMap = make(map[int]int)
	stmt := fmt.Sprintf("SELECT book, %s FROM %s", t.field.LinkColumn, t.field.LinkTable)
	return each(conn, stmt, func(rows *sql.Rows) error {
		var book, item int
		if err := rows.Scan(&book, &item); err != nil {
			return err
		}
		if _, ok := t.IDMap[item]; !ok {
			return nil
		}
		t.BookColMap[book] = item
		t.link(item, book)
		return nil
	})
}

func (t *ManyOne) For(book int) any {
	item, ok := t.BookColMap[book]
	if !ok {
		return nil
	}
	return t.IDMap[item]
}

func (t *ManyOne) IDsFor(book int) []int {
	if item, ok := t.BookColMap[book]; ok {
		return []int{item}
	}
	return nil
}

// Set points book at item, or clears it when item is 0.
func (t *ManyOne) Set(book, item int) {
	if old, ok := t.BookColMap[book]; ok {
		t.unlink(old, book)
	}
	if item == 0 {
		delete(t.BookColMap, book)
		return
	}
	t.BookColMap[book] = item
	t.link(item, book)
}

func (t *ManyOne) RemoveBooks(ids []int, conn store.Conn) ([]int, error) {
	var clean []int
	for _, book := range ids {
		item, ok := t.BookColMap[book]
		if !ok {
			continue
		}
		delete(t.BookColMap, book)
		t.unlink(item, book)
		if len(t.ColBookMap[item]) == 0 {
			if _, known := t.IDMap[item]; known {
				clean = append(clean, item)
			}
		}
	}
	sort.Ints(clean)
	return clean, t.Purge(clean, conn)
}

// FixCaseDuplicates merges value-ids whose values only differ in case into
// the lowest id. It returns the merged away ids.
func (t *ManyOne) FixCaseDuplicates(conn store.Conn) ([]int, error) {
	var removed []int
	for main, dups := range t.caseGroups() {
		rows := make([][]any, 0, len(dups))
		for _, dup := range dups {
			for book := range t.ColBookMap[dup] {
				t.BookColMap[book] = main
				t.link(main, book)
			}
			delete(t.ColBookMap, dup)
			rows = append(rows, []any{main, dup})
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s=? WHERE %s=?", t.field.LinkTable, t.field.LinkColumn, t.field.LinkColumn)
		if err := conn.ExecuteMany(stmt, rows); err != nil {
			return nil, err
		}
		if err := t.Purge(dups, conn); err != nil {
			return nil, err
		}
		removed = append(removed, dups...)
	}
	sort.Ints(removed)
	return removed, nil
}

// ManyMany links each book to an ordered list of values.
type ManyMany struct {
	items
	BookColMap map[int][]int
}

func NewManyMany(f *meta.Field) *ManyMany {
	return &ManyMany{items: newItems(f), BookColMap: make(map[int][]int)}
}

func (t *ManyMany) ordered() bool {
	return t.field.LinkTable == "books_languages_link"
}

func (t *ManyMany) Read(conn store.Conn) error {
	if err := t.readIDMap(conn); err != nil {
		return err
	}
	return t.readLinks(conn)
}

func (t *ManyMany) readLinks(conn store.Conn) error {
	order := "id"
	if t.ordered() {
		order = "item_order, id"
	}
	t.BookColMap = make(map[int][]int)
	stmt := fmt.Sprintf("SELECT book, %s FROM %s ORDER BY %s", t.field.LinkColumn, t.field.LinkTable, order)
	return each(conn, stmt, func(rows *sql.Rows) error {
		var book, item int
		if err := rows.Scan(&book, &item); err != nil {
			return err
		}
		if _, ok := t.IDMap[item]; !ok {
			return nil
		}
		t.BookColMap[book] = append(t.BookColMap[book], item)
		t.link(item, book)
		return nil
	})
}

func (t *ManyMany) For(book int) any {
	ids, ok := t.BookColMap[book]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprint(t.IDMap[id]))
	}
	return out
}

func (t *ManyMany) IDsFor(book int) []int {
	return append([]int(nil), t.BookColMap[book]...)
}

// Set replaces the values of book; an empty list clears it.
func (t *ManyMany) Set(book int, ids []int) {
	for _, old := range t.BookColMap[book] {
		t.unlink(old, book)
	}
	if len(ids) == 0 {
		delete(t.BookColMap, book)
		return
	}
	t.BookColMap[book] = ids
	for _, id := range ids {
		t.link(id, book)
	}
}

// LinkInsert is the statement adding one link row; see LinkRows.
func (t *ManyMany) LinkInsert() string {
	if t.ordered() {
		return fmt.Sprintf("INSERT INTO %s(book,%s,item_order) VALUES(?, ?, ?)", t.field.LinkTable, t.field.LinkColumn)
	}
	return fmt.Sprintf("INSERT INTO %s(book,%s) VALUES(?, ?)", t.field.LinkTable, t.field.LinkColumn)
}

// LinkRows are the LinkInsert arguments storing ids for book.
func (t *ManyMany) LinkRows(book int, ids []int) [][]any {
	rows := make([][]any, 0, len(ids))
	for i, id := range ids {
		if t.ordered() {
			rows = append(rows, []any{book, id, i})
		} else {
			rows = append(rows, []any{book, id})
		}
	}
	return rows
}

func (t *ManyMany) RemoveBooks(ids []int, conn store.Conn) ([]int, error) {
	clean := model.NewIDSet()
	for _, book := range ids {
		items, ok := t.BookColMap[book]
		if !ok {
			continue
		}
		delete(t.BookColMap, book)
		for _, item := range items {
			t.unlink(item, book)
			if len(t.ColBookMap[item]) == 0 {
				if _, known := t.IDMap[item]; known {
					clean.Add(item)
				}
			}
		}
	}
	removed := clean.Sorted()
	return removed, t.Purge(removed, conn)
}

// FixCaseDuplicates merges value-ids whose values only differ in case into
// the lowest id, relinking the affected books. It returns the merged away ids.
func (t *ManyMany) FixCaseDuplicates(conn store.Conn) ([]int, error) {
	groups := t.caseGroups()
	if len(groups) == 0 {
		return nil, nil
	}
	replace := make(map[int]int)
	var removed []int
	books := model.NewIDSet()
	for main, dups := range groups {
		for _, dup := range dups {
			replace[dup] = main
			books.Update(t.ColBookMap[dup])
		}
		removed = append(removed, dups...)
	}
	sort.Ints(removed)

	del := fmt.Sprintf("DELETE FROM %s WHERE book=?", t.field.LinkTable)
	for _, book := range books.Sorted() {
		seen := make(map[int]bool)
		var ids []int
		for _, id := range t.BookColMap[book] {
			if r, ok := replace[id]; ok {
				id = r
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		t.Set(book, ids)
		if err := conn.Execute(del, book); err != nil {
			return nil, err
		}
		if err := conn.ExecuteMany(t.LinkInsert(), t.LinkRows(book, ids)); err != nil {
			return nil, err
		}
	}
	return removed, t.Purge(removed, conn)
}

// Authors adds the author sort and link of every author.
type Authors struct {
	*ManyMany
	ASortMap map[int]string
	ALinkMap map[int]string
}

func NewAuthors(f *meta.Field) *Authors {
	return &Authors{ManyMany: NewManyMany(f), ASortMap: make(map[int]string), ALinkMap: make(map[int]string)}
}

// StoreName is how an author name is written to the authors table.
func StoreName(name string) string {
	return strings.ReplaceAll(name, ",", "|")
}

func (t *Authors) Read(conn store.Conn) error {
	ids := make(map[int]any)
	asort := make(map[int]string)
	alink := make(map[int]string)
	err := each(conn, "SELECT id, name, sort, link FROM authors", func(rows *sql.Rows) error {
		var (
			id         int
			name       string
			asrt, link sql.NullString
		)
		if err := rows.Scan(&id, &name, &asrt, &link); err != nil {
			return err
		}
		name = strings.ReplaceAll(name, "|", ",")
		ids[id] = name
		if asrt.Valid && asrt.String != "" {
			asort[id] = asrt.String
		} else {
			asort[id] = util.AuthorToAuthorSort(name)
		}
		alink[id] = link.String
		return nil
	})
	if err != nil {
		return err
	}
	t.IDMap, t.ASortMap, t.ALinkMap = ids, asort, alink
	t.ColBookMap = make(map[int]model.IDSet, len(ids))
	return t.readLinks(conn)
}

func (t *Authors) forget(ids []int) {
	for _, id := range ids {
		delete(t.ASortMap, id)
		delete(t.ALinkMap, id)
	}
}

// Purge deletes author rows and forgets their sort and link.
func (t *Authors) Purge(ids []int, conn store.Conn) error {
	t.forget(ids)
	return t.ManyMany.Purge(ids, conn)
}

func (t *Authors) RemoveBooks(ids []int, conn store.Conn) ([]int, error) {
	removed, err := t.ManyMany.RemoveBooks(ids, conn)
	t.forget(removed)
	return removed, err
}

func (t *Authors) FixCaseDuplicates(conn store.Conn) ([]int, error) {
	removed, err := t.ManyMany.FixCaseDuplicates(conn)
	t.forget(removed)
	return removed, err
}

// SortFor returns the author sort strings of a book, in author order.
func (t *Authors) SortFor(book int) []string {
	var out []string
	for _, id := range t.BookColMap[book] {
		out = append(out, t.ASortMap[id])
	}
	return out
}
