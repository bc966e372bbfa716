package writer

import (
	"fmt"
	"slices"

	"github.com/Xunop/e-oasis-meta/internal/adapt"
	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
	"github.com/Xunop/e-oasis-meta/internal/util"
)

// resolver maps submitted values to value-ids, creating value rows as needed
// and collecting case changes.
type resolver struct {
	field       *meta.Field
	conn        store.Conn
	idMap       map[int]any
	authors     *table.Authors
	allowCase   bool
	rid         map[any]int
	valMap      map[any]int
	caseChanges map[int]any
}

func newResolver(conn store.Conn, f *meta.Field, idMap map[int]any, allowCase bool) *resolver {
	r := &resolver{
		field:       f,
		conn:        conn,
		idMap:       idMap,
		allowCase:   allowCase,
		valMap:      make(map[any]int),
		caseChanges: make(map[int]any),
	}
	r.rebuild()
	return r
}

func (r *resolver) rebuild() {
	r.rid = make(map[any]int, len(r.idMap))
	for id, v := range r.idMap {
		r.rid[table.Key(r.field, v)] = id
	}
}

// hasCaseDuplicates is true when two value-ids share a key.
func (r *resolver) hasCaseDuplicates() bool {
	return len(r.rid) != len(r.idMap)
}

func (r *resolver) resolve(v any) error {
	k := table.Key(r.field, v)
	id, ok := r.rid[k]
	switch {
	case !ok:
		if r.authors != nil {
			name := v.(string)
			asort := util.AuthorToAuthorSort(name)
			if err := r.conn.Execute("INSERT INTO authors(name,sort) VALUES (?,?)", table.StoreName(name), asort); err != nil {
				return err
			}
			id = r.conn.LastInsertRowID()
			r.authors.ASortMap[id] = asort
			r.authors.ALinkMap[id] = ""
		} else {
			stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES (?)", r.field.Table, r.field.Column)
			if err := r.conn.Execute(stmt, v); err != nil {
				return err
			}
			id = r.conn.LastInsertRowID()
		}
		r.rid[k] = id
		r.idMap[id] = v
	case r.allowCase && !adapt.Equal(v, r.idMap[id]):
		r.caseChanges[id] = v
	}
	r.valMap[v] = id
	return nil
}

// applyCaseChanges rewrites the display of existing value-ids. Every book
// pointing at a changed value is dirtied.
func (r *resolver) applyCaseChanges(colBookMap map[int]model.IDSet, dirtied model.IDSet) error {
	if len(r.caseChanges) == 0 {
		return nil
	}
	ids := sortedBooks(r.caseChanges)
	rows := make([][]any, 0, len(ids))
	stmt := fmt.Sprintf("UPDATE %s SET %s=? WHERE id=?", r.field.Table, r.field.Column)
	if r.authors != nil {
		stmt = "UPDATE authors SET name=?, sort=? WHERE id=?"
	}
	for _, id := range ids {
		v := r.caseChanges[id]
		if r.authors != nil {
			name := v.(string)
			rows = append(rows, []any{table.StoreName(name), util.AuthorToAuthorSort(name), id})
		} else {
			rows = append(rows, []any{v, id})
		}
	}
	if err := r.conn.ExecuteMany(stmt, rows); err != nil {
		return err
	}
	for _, id := range ids {
		v := r.caseChanges[id]
		r.idMap[id] = v
		dirtied.Update(colBookMap[id])
		if r.authors != nil {
			r.authors.ASortMap[id] = util.AuthorToAuthorSort(v.(string))
		}
	}
	return nil
}

func (w *Writer) manyOne(conn store.Conn, vals map[int]any, allowCaseChange bool) (model.IDSet, error) {
	t := w.table.(*table.ManyOne)
	dirtied := model.NewIDSet()

	r := newResolver(conn, w.field, t.IDMap, allowCaseChange)
	if r.hasCaseDuplicates() {
		if _, err := t.FixCaseDuplicates(conn); err != nil {
			return dirtied, err
		}
		r.rebuild()
	}
	books := sortedBooks(vals)
	for _, b := range books {
		if v := vals[b]; v != nil {
			if err := r.resolve(v); err != nil {
				return dirtied, err
			}
		}
	}
	if err := r.applyCaseChanges(t.ColBookMap, dirtied); err != nil {
		return dirtied, err
	}

	var deleted, updated []int
	for _, b := range books {
		item := 0
		if v := vals[b]; v != nil {
			item = r.valMap[v]
		}
		if item == t.BookColMap[b] {
			continue
		}
		t.Set(b, item)
		dirtied.Add(b)
		if item == 0 {
			deleted = append(deleted, b)
		} else {
			updated = append(updated, b)
		}
	}

	customSeries := w.field.IsCustom && w.field.Datatype == meta.Series
	var idx *table.OneOne
	if customSeries {
		if it, ok := w.set.tables[w.field.Name+"_index"]; ok {
			idx = oneOneTable(it)
		}
	}

	if len(deleted) > 0 {
		rows := make([][]any, 0, len(deleted))
		for _, b := range deleted {
			rows = append(rows, []any{b})
			if idx != nil {
				delete(idx.BookColMap, b)
			}
		}
		if err := conn.ExecuteMany(fmt.Sprintf("DELETE FROM %s WHERE book=?", w.field.LinkTable), rows); err != nil {
			return dirtied, err
		}
	}
	if len(updated) > 0 {
		stmt := "DELETE FROM %[1]s WHERE book=?; INSERT INTO %[1]s(book,%[2]s) VALUES(?, ?)"
		if customSeries {
			stmt = "DELETE FROM %[1]s WHERE book=?; INSERT INTO %[1]s(book,%[2]s,extra) VALUES(?, ?, 1.0)"
		}
		rows := make([][]any, 0, len(updated))
		for _, b := range updated {
			rows = append(rows, []any{b, b, t.BookColMap[b]})
			if idx != nil {
				idx.BookColMap[b] = 1.0
			}
		}
		if err := conn.ExecuteMany(fmt.Sprintf(stmt, w.field.LinkTable, w.field.LinkColumn), rows); err != nil {
			return dirtied, err
		}
	}

	return dirtied, t.Purge(t.Orphans(), conn)
}

// uniq drops values whose key was already seen, keeping the first.
func uniq(f *meta.Field, vals []string) []string {
	seen := make(map[any]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		k := table.Key(f, v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func (w *Writer) manyMany(conn store.Conn, vals map[int]any, allowCaseChange bool) (model.IDSet, error) {
	var (
		t       *table.ManyMany
		authors *table.Authors
	)
	switch x := w.table.(type) {
	case *table.Authors:
		t, authors = x.ManyMany, x
	case *table.ManyMany:
		t = x
	}
	purge := t.Purge
	if authors != nil {
		purge = authors.Purge
	}
	dirtied := model.NewIDSet()

	r := newResolver(conn, w.field, t.IDMap, allowCaseChange)
	r.authors = authors
	if r.hasCaseDuplicates() {
		var err error
		if authors != nil {
			_, err = authors.FixCaseDuplicates(conn)
		} else {
			_, err = t.FixCaseDuplicates(conn)
		}
		if err != nil {
			return dirtied, err
		}
		r.rebuild()
	}

	books := sortedBooks(vals)
	lists := make(map[int][]string, len(vals))
	for _, b := range books {
		list := uniq(w.field, vals[b].([]string))
		lists[b] = list
		for _, v := range list {
			if err := r.resolve(v); err != nil {
				return dirtied, err
			}
		}
	}
	if err := r.applyCaseChanges(t.ColBookMap, dirtied); err != nil {
		return dirtied, err
	}
	if authors != nil && len(r.caseChanges) > 0 {
		if err := w.fixAuthorSortCase(conn, authors, r.caseChanges); err != nil {
			return dirtied, err
		}
	}

	var deleted, updated []int
	for _, b := range books {
		ids := make([]int, 0, len(lists[b]))
		for _, v := range lists[b] {
			ids = append(ids, r.valMap[v])
		}
		if slices.Equal(ids, t.BookColMap[b]) {
			continue
		}
		t.Set(b, ids)
		dirtied.Add(b)
		if len(ids) == 0 {
			deleted = append(deleted, b)
		} else {
			updated = append(updated, b)
		}
	}

	stale := make([][]any, 0, len(deleted)+len(updated))
	for _, b := range deleted {
		stale = append(stale, []any{b})
	}
	for _, b := range updated {
		stale = append(stale, []any{b})
	}
	if len(stale) > 0 {
		if err := conn.ExecuteMany(fmt.Sprintf("DELETE FROM %s WHERE book=?", w.field.LinkTable), stale); err != nil {
			return dirtied, err
		}
	}
	if len(updated) > 0 {
		var rows [][]any
		for _, b := range updated {
			rows = append(rows, t.LinkRows(b, t.BookColMap[b])...)
		}
		if err := conn.ExecuteMany(t.LinkInsert(), rows); err != nil {
			return dirtied, err
		}
		if authors != nil {
			sorts := make(map[int]any, len(updated))
			for _, b := range updated {
				sorts[b] = util.AuthorsSort(authors.SortFor(b))
			}
			more, err := w.set.mustWriter("author_sort").SetBooks(conn, sorts, false)
			dirtied.Update(more)
			if err != nil {
				return dirtied, err
			}
		}
	}

	return dirtied, purge(t.Orphans(), conn)
}

// fixAuthorSortCase rewrites the author sort of books whose stored sort only
// differs in case from the one computed from the renamed authors.
func (w *Writer) fixAuthorSortCase(conn store.Conn, authors *table.Authors, changes map[int]any) error {
	aw := w.set.mustWriter("author_sort")
	sorts := make(map[int]any)
	for item := range changes {
		for b := range authors.ColBookMap[item] {
			cur, _ := aw.table.For(b).(string)
			computed := util.AuthorsSort(authors.SortFor(b))
			if util.EqualFold(cur, computed) {
				sorts[b] = computed
			}
		}
	}
	if len(sorts) == 0 {
		return nil
	}
	_, err := aw.SetBooks(conn, sorts, false)
	return err
}
