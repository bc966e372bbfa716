package writer

import (
	"fmt"

	"github.com/Xunop/e-oasis-meta/internal/adapt"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
	"github.com/Xunop/e-oasis-meta/internal/util"
)

// changed drops the entries equal to what the book already has.
func changed(t *table.OneOne, vals map[int]any) map[int]any {
	out := make(map[int]any, len(vals))
	for b, v := range vals {
		cur, ok := t.BookColMap[b]
		if ok && adapt.Equal(v, cur) || !ok && v == nil {
			continue
		}
		out[b] = v
	}
	return out
}

func oneOneTable(t table.Table) *table.OneOne {
	switch x := t.(type) {
	case *table.OneOne:
		return x
	case *table.UUID:
		return x.OneOne
	case *table.Size:
		return x.OneOne
	}
	panic(fmt.Sprintf("writer: %T is not a one-one table", t))
}

func (w *Writer) oneOneInBooks(conn store.Conn, vals map[int]any, force bool) (model.IDSet, error) {
	t := oneOneTable(w.table)
	if !force {
		vals = changed(t, vals)
	}
	if len(vals) == 0 {
		return model.NewIDSet(), nil
	}
	rows := make([][]any, 0, len(vals))
	for _, b := range sortedBooks(vals) {
		rows = append(rows, []any{sqlValue(vals[b]), b})
	}
	stmt := fmt.Sprintf("UPDATE books SET %s=? WHERE id=?", w.field.Column)
	if err := conn.ExecuteMany(stmt, rows); err != nil {
		return model.NewIDSet(), err
	}
	dirtied := model.NewIDSet()
	for b, v := range vals {
		if v == nil {
			delete(t.BookColMap, b)
		} else {
			t.BookColMap[b] = v
		}
		dirtied.Add(b)
	}
	return dirtied, nil
}

// bookLanguage is the first language of a book, used to pick the articles
// the title sort moves.
func (w *Writer) bookLanguage(book int) string {
	t, ok := w.set.tables["languages"]
	if !ok {
		return ""
	}
	if langs, ok := t.For(book).([]string); ok && len(langs) > 0 {
		return langs[0]
	}
	return ""
}

func (w *Writer) title(conn store.Conn, vals map[int]any) (model.IDSet, error) {
	dirtied, err := w.oneOneInBooks(conn, vals, false)
	if err != nil || len(dirtied) == 0 {
		return dirtied, err
	}
	sorts := make(map[int]any, len(dirtied))
	for b := range dirtied {
		sorts[b] = util.TitleSort(vals[b].(string), w.bookLanguage(b))
	}
	// The update trigger has already rewritten sort with the default
	// language, so the sort is written even where memory agrees.
	more, err := w.set.mustWriter("sort").oneOneInBooks(conn, sorts, true)
	dirtied.Update(more)
	return dirtied, err
}

func (w *Writer) uuid(conn store.Conn, vals map[int]any) (model.IDSet, error) {
	t := w.table.(*table.UUID)
	vals = changed(t.OneOne, vals)
	for b, v := range vals {
		t.Set(b, v.(string))
	}
	return w.oneOneInBooks(conn, vals, true)
}

func (w *Writer) oneOneInOther(conn store.Conn, vals map[int]any) (model.IDSet, error) {
	t := oneOneTable(w.table)
	vals = changed(t, vals)
	dirtied := model.NewIDSet()
	var deleted, updated [][]any
	for _, b := range sortedBooks(vals) {
		if v := vals[b]; v == nil {
			deleted = append(deleted, []any{b})
		} else {
			updated = append(updated, []any{b, sqlValue(v)})
		}
	}
	if len(deleted) > 0 {
		if err := conn.ExecuteMany(fmt.Sprintf("DELETE FROM %s WHERE book=?", w.field.Table), deleted); err != nil {
			return dirtied, err
		}
	}
	if len(updated) > 0 {
		stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s(book,%s) VALUES (?,?)", w.field.Table, w.field.Column)
		if err := conn.ExecuteMany(stmt, updated); err != nil {
			return dirtied, err
		}
	}
	for b, v := range vals {
		if v == nil {
			delete(t.BookColMap, b)
		} else {
			t.BookColMap[b] = v
		}
		dirtied.Add(b)
	}
	return dirtied, nil
}

func (w *Writer) seriesTable() *table.ManyOne {
	name := w.field.Name[:len(w.field.Name)-len("_index")]
	return w.set.tables[name].(*table.ManyOne)
}

func (w *Writer) customSeriesIndex(conn store.Conn, vals map[int]any) (model.IDSet, error) {
	t := oneOneTable(w.table)
	series := w.seriesTable()
	dirtied := model.NewIDSet()
	var rows [][]any
	for _, b := range sortedBooks(vals) {
		idx, ok := vals[b].(float64)
		if !ok {
			idx = 1.0
		}
		item, ok := series.BookColMap[b]
		if !ok {
			// No series, so no link row to hold the index.
			delete(t.BookColMap, b)
			continue
		}
		if cur, ok := t.BookColMap[b]; !ok || !adapt.Equal(cur, idx) {
			rows = append(rows, []any{idx, b, item})
			dirtied.Add(b)
		}
		t.BookColMap[b] = idx
	}
	if len(rows) == 0 {
		return dirtied, nil
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s=? WHERE book=? AND value=?", w.field.Table, w.field.Column)
	return dirtied, conn.ExecuteMany(stmt, rows)
}
