package writer

import (
	"sort"

	"github.com/Xunop/e-oasis-meta/internal/adapt"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
)

// identifiers replaces the whole kind -> value mapping of each book. Books
// whose mapping is unchanged are left alone.
func (w *Writer) identifiers(conn store.Conn, vals map[int]any) (model.IDSet, error) {
	t := w.table.(*table.Identifiers)
	dirtied := model.NewIDSet()
	var stale, rows [][]any
	for _, b := range sortedBooks(vals) {
		ids := vals[b].(map[string]string)
		cur, ok := t.BookColMap[b]
		if ok && adapt.Equal(ids, cur) || !ok && len(ids) == 0 {
			continue
		}
		t.Set(b, ids)
		dirtied.Add(b)
		stale = append(stale, []any{b})
		for _, kind := range sortedKinds(ids) {
			rows = append(rows, []any{b, kind, ids[kind]})
		}
	}
	if len(stale) == 0 {
		return dirtied, nil
	}
	if err := conn.ExecuteMany("DELETE FROM identifiers WHERE book=?", stale); err != nil {
		return dirtied, err
	}
	if len(rows) == 0 {
		return dirtied, nil
	}
	return dirtied, conn.ExecuteMany("INSERT OR REPLACE INTO identifiers(book,type,val) VALUES (?,?,?)", rows)
}

func sortedKinds(ids map[string]string) []string {
	kinds := make([]string, 0, len(ids))
	for k := range ids {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
