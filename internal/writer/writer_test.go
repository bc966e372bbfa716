package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
)

type fixture struct {
	db     *store.DB
	tables map[string]table.Table
	set    *Set
}

func newFixture(t *testing.T, cols []meta.CustomColumn, stmts ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	fields := meta.Standard()
	for _, col := range cols {
		for _, stmt := range col.CreateStatements() {
			require.NoError(t, db.ExecuteScript(ctx, stmt))
		}
		for _, f := range col.Fields() {
			fields.Add(f)
		}
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Execute(stmt), stmt)
	}
	require.NoError(t, db.Commit())

	tables := make(map[string]table.Table)
	for _, name := range fields.Names() {
		f, _ := fields.Get(name)
		tbl := table.New(f)
		require.NoError(t, tbl.Read(db), name)
		tables[name] = tbl
	}
	return &fixture{db: db, tables: tables, set: NewSet(tables)}
}

func (fx *fixture) write(t *testing.T, name string, vals map[int]any, allowCaseChange bool) model.IDSet {
	t.Helper()
	w, ok := fx.set.Writer(name)
	require.True(t, ok, name)
	dirtied, err := w.SetBooks(fx.db, vals, allowCaseChange)
	require.NoError(t, err)
	require.NoError(t, fx.db.Commit())
	return dirtied
}

// assertStored re-reads a field from the store and compares it with memory.
func (fx *fixture) assertStored(t *testing.T, name string) {
	t.Helper()
	mem := fx.tables[name]
	fresh := table.New(mem.Field())
	require.NoError(t, fresh.Read(fx.db))

	var want, got any
	switch m := mem.(type) {
	case *table.Authors:
		f := fresh.(*table.Authors)
		want = []any{m.BookColMap, m.IDMap, m.ASortMap}
		got = []any{f.BookColMap, f.IDMap, f.ASortMap}
	case *table.ManyMany:
		f := fresh.(*table.ManyMany)
		want, got = []any{m.BookColMap, m.IDMap}, []any{f.BookColMap, f.IDMap}
	case *table.ManyOne:
		f := fresh.(*table.ManyOne)
		want, got = []any{m.BookColMap, m.IDMap}, []any{f.BookColMap, f.IDMap}
	case *table.Identifiers:
		want, got = m.BookColMap, fresh.(*table.Identifiers).BookColMap
	case *table.OneOne:
		want, got = m.BookColMap, fresh.(*table.OneOne).BookColMap
	case *table.UUID:
		want, got = m.BookColMap, fresh.(*table.UUID).BookColMap
	default:
		t.Fatalf("no comparison for %T", mem)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s: memory and store disagree (-memory +store):\n%s", name, diff)
	}

	if it, ok := mem.(table.ItemTable); ok {
		for id := range it.Items() {
			assert.NotEmpty(t, it.BooksFor(id), "%s: orphan value-id %d", name, id)
		}
	}
}

func queryInt(t *testing.T, db *store.DB, stmt string, args ...any) int {
	t.Helper()
	rows, err := db.Query(stmt, args...)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next(), stmt)
	var n int
	require.NoError(t, rows.Scan(&n))
	return n
}

func queryString(t *testing.T, db *store.DB, stmt string, args ...any) string {
	t.Helper()
	rows, err := db.Query(stmt, args...)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next(), stmt)
	var s string
	require.NoError(t, rows.Scan(&s))
	return s
}

const threeBooks = "INSERT INTO books(id, title) VALUES (1, 'A'), (2, 'B'), (3, 'C')"

func TestStrategySelection(t *testing.T) {
	saga := meta.CustomColumn{Num: 1, Label: "saga", Datatype: meta.Series, Normalized: true, Editable: true}
	fx := newFixture(t, []meta.CustomColumn{saga})
	want := map[string]Strategy{
		"id":           Dummy,
		"size":         Dummy,
		"path":         Dummy,
		"formats":      Dummy,
		"news":         Dummy,
		"#saga_index":  CustomSeriesIndex,
		"identifiers":  Identifiers,
		"uuid":         UUID,
		"title":        Title,
		"authors":      ManyMany,
		"tags":         ManyMany,
		"series":       ManyOne,
		"#saga":        ManyOne,
		"rating":       ManyOne,
		"sort":         OneOneInBooks,
		"series_index": OneOneInBooks,
		"comments":     OneOneInOther,
	}
	for name, s := range want {
		w, ok := fx.set.Writer(name)
		require.True(t, ok, name)
		assert.Equal(t, s, w.Strategy(), name)
	}
	dirtied := fx.write(t, "formats", map[int]any{1: "EPUB"}, true)
	assert.Empty(t, dirtied)
}

func TestAuthorsRenameWithCaseChange(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	dirtied := fx.write(t, "authors", map[int]any{1: "Alice Smith", 2: "Alice Smith", 3: "Alice Smith"}, true)
	assert.Equal(t, []int{1, 2, 3}, dirtied.Sorted())
	assert.Equal(t, "Smith, Alice", fx.tables["author_sort"].For(2))

	dirtied = fx.write(t, "authors", map[int]any{2: "alice smith"}, true)
	assert.Equal(t, []int{1, 2, 3}, dirtied.Sorted())

	authors := fx.tables["authors"].(*table.Authors)
	require.Len(t, authors.IDMap, 1)
	for id, name := range authors.IDMap {
		assert.Equal(t, "alice smith", name)
		assert.Equal(t, "smith, alice", authors.ASortMap[id])
		assert.Equal(t, []int{1, 2, 3}, authors.BooksFor(id).Sorted())
	}
	for _, b := range []int{1, 2, 3} {
		assert.Equal(t, "smith, alice", fx.tables["author_sort"].For(b))
	}
	fx.assertStored(t, "authors")
	fx.assertStored(t, "author_sort")
}

func TestSameAuthorsShareValueIDs(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "authors", map[int]any{
		1: []string{"Jane Roe", "John Smith"},
		2: []string{"Jane Roe", "John Smith"},
		3: []string{"john smith", "Jane Roe"},
	}, false)

	authors := fx.tables["authors"].(*table.Authors)
	first, second := authors.BookColMap[1], authors.BookColMap[2]
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "Jane Roe", authors.IDMap[first[0]])
	assert.Equal(t, "John Smith", authors.IDMap[first[1]])
	assert.Equal(t, []int{first[1], first[0]}, authors.BookColMap[3])
	require.Len(t, authors.IDMap, 2)
	fx.assertStored(t, "authors")
}

func TestAuthorsDefaultAndCommas(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "authors", map[int]any{1: "", 2: []string{"Smith, John", "Jane Roe"}}, true)
	assert.Equal(t, []string{"Unknown"}, fx.tables["authors"].For(1))
	assert.Equal(t, []string{"Smith, John", "Jane Roe"}, fx.tables["authors"].For(2))
	assert.Equal(t, 1, queryInt(t, fx.db, "SELECT COUNT(*) FROM authors WHERE name='Smith| John'"))
	assert.Equal(t, "Unknown", fx.tables["author_sort"].For(1))
	fx.assertStored(t, "authors")
}

func TestTagGarbageCollection(t *testing.T) {
	fx := newFixture(t, nil,
		threeBooks,
		"INSERT INTO tags(id, name) VALUES (1, 'sf'), (2, 'fantasy')",
		"INSERT INTO books_tags_link(book, tag) VALUES (1, 1), (1, 2)",
	)
	dirtied := fx.write(t, "tags", map[int]any{1: []string{}}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	tags := fx.tables["tags"].(*table.ManyMany)
	assert.Empty(t, tags.IDMap)
	assert.Equal(t, 0, queryInt(t, fx.db, "SELECT COUNT(*) FROM books_tags_link"))
	assert.Equal(t, 0, queryInt(t, fx.db, "SELECT COUNT(*) FROM tags"))
}

func TestIdentifierDiff(t *testing.T) {
	fx := newFixture(t, nil,
		"INSERT INTO books(id, title) VALUES (5, 'A')",
		"INSERT INTO identifiers(book, type, val) VALUES (5, 'isbn', '111'), (5, 'amazon', 'AAA')",
	)
	next := map[string]string{"isbn": "222", "google": "GGG"}
	dirtied := fx.write(t, "identifiers", map[int]any{5: next}, true)
	assert.Equal(t, []int{5}, dirtied.Sorted())
	assert.Equal(t, next, fx.tables["identifiers"].For(5))
	fx.assertStored(t, "identifiers")
	assert.Empty(t, fx.tables["identifiers"].(*table.Identifiers).BooksWith("amazon"))

	dirtied = fx.write(t, "identifiers", map[int]any{5: next}, true)
	assert.Empty(t, dirtied)
}

func TestIdentifierSanitization(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "identifiers", map[int]any{1: map[string]string{"ISBN:x": "12:34,56"}}, true)
	assert.Equal(t, map[string]string{"isbn": "12|34|56"}, fx.tables["identifiers"].For(1))
	fx.assertStored(t, "identifiers")
}

func TestTitleDrivesSort(t *testing.T) {
	fx := newFixture(t, nil, "INSERT INTO books(id, title) VALUES (7, 'Old')")
	dirtied := fx.write(t, "title", map[int]any{7: "The Sun Also Rises"}, true)
	assert.True(t, dirtied.Has(7))
	assert.Equal(t, "The Sun Also Rises", queryString(t, fx.db, "SELECT title FROM books WHERE id=7"))
	assert.Equal(t, "Sun Also Rises, The", queryString(t, fx.db, "SELECT sort FROM books WHERE id=7"))
	assert.Equal(t, "Sun Also Rises, The", fx.tables["sort"].For(7))

	fx.write(t, "title", map[int]any{7: "  "}, true)
	assert.Equal(t, "Unknown", fx.tables["title"].For(7))
	fx.assertStored(t, "title")
	fx.assertStored(t, "sort")
}

func TestTitleSortFollowsBookLanguage(t *testing.T) {
	fx := newFixture(t, nil, "INSERT INTO books(id, title) VALUES (1, 'x')")
	fx.write(t, "languages", map[int]any{1: "French"}, true)
	fx.write(t, "title", map[int]any{1: "Les Misérables"}, true)
	assert.Equal(t, "Misérables, Les", fx.tables["sort"].For(1))
	fx.assertStored(t, "sort")
}

func TestSeriesWithEmbeddedIndex(t *testing.T) {
	fx := newFixture(t, nil, "INSERT INTO books(id, title) VALUES (9, 'A')")
	dirtied := fx.write(t, "series", map[int]any{9: "Foundation [2.5]"}, true)
	assert.Equal(t, []int{9}, dirtied.Sorted())
	assert.Equal(t, "Foundation", fx.tables["series"].For(9))
	assert.Equal(t, 2.5, fx.tables["series_index"].For(9))
	fx.assertStored(t, "series")
	fx.assertStored(t, "series_index")
}

func TestCaseFolding(t *testing.T) {
	t.Run("keep case", func(t *testing.T) {
		fx := newFixture(t, nil, threeBooks)
		fx.write(t, "tags", map[int]any{1: "Alice"}, false)
		dirtied := fx.write(t, "tags", map[int]any{2: "alice"}, false)
		assert.Equal(t, []int{2}, dirtied.Sorted())
		tags := fx.tables["tags"].(*table.ManyMany)
		require.Len(t, tags.IDMap, 1)
		assert.Equal(t, tags.IDsFor(1), tags.IDsFor(2))
		assert.Equal(t, []string{"Alice"}, tags.For(2))
		fx.assertStored(t, "tags")
	})
	t.Run("change case", func(t *testing.T) {
		fx := newFixture(t, nil, threeBooks)
		fx.write(t, "tags", map[int]any{1: "Alice"}, false)
		dirtied := fx.write(t, "tags", map[int]any{2: "alice"}, true)
		assert.Equal(t, []int{1, 2}, dirtied.Sorted())
		assert.Equal(t, []string{"alice"}, fx.tables["tags"].For(1))
		fx.assertStored(t, "tags")
	})
	t.Run("duplicates in one list", func(t *testing.T) {
		fx := newFixture(t, nil, threeBooks)
		fx.write(t, "tags", map[int]any{1: "sf, SF, fantasy"}, false)
		assert.Equal(t, []string{"sf", "fantasy"}, fx.tables["tags"].For(1))
	})
}

func TestIdempotentWrites(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	writes := []struct {
		field string
		vals  map[int]any
	}{
		{"tags", map[int]any{1: "a, b", 2: "a, b"}},
		{"authors", map[int]any{1: "Ann Lee & Bo Kim"}},
		{"series", map[int]any{1: "Dune"}},
		{"publisher", map[int]any{2: "Ace"}},
		{"rating", map[int]any{3: 6}},
		{"comments", map[int]any{1: "<p>hi</p>"}},
		{"pubdate", map[int]any{1: "2001-02-03"}},
		{"series_index", map[int]any{1: 4}},
		{"languages", map[int]any{1: "eng, fra"}},
		{"title", map[int]any{2: "A New Title"}},
	}
	for _, wr := range writes {
		first := fx.write(t, wr.field, wr.vals, true)
		assert.NotEmpty(t, first, wr.field)
		second := fx.write(t, wr.field, wr.vals, true)
		assert.Empty(t, second, wr.field)
		fx.assertStored(t, wr.field)
	}
	tags := fx.tables["tags"]
	assert.Equal(t, tags.For(1), tags.For(2))
}

func TestRatings(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "rating", map[int]any{1: 12, 2: "4"}, true)
	assert.Equal(t, int64(10), fx.tables["rating"].For(1))
	assert.Equal(t, int64(4), fx.tables["rating"].For(2))

	dirtied := fx.write(t, "rating", map[int]any{1: 0}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	assert.Nil(t, fx.tables["rating"].For(1))
	assert.Equal(t, 1, queryInt(t, fx.db, "SELECT COUNT(*) FROM ratings"))
	fx.assertStored(t, "rating")
}

func TestCommentsInSideTable(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "comments", map[int]any{1: "  nice "}, true)
	assert.Equal(t, "nice", fx.tables["comments"].For(1))

	dirtied := fx.write(t, "comments", map[int]any{1: ""}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	assert.Equal(t, 0, queryInt(t, fx.db, "SELECT COUNT(*) FROM comments"))

	dirtied = fx.write(t, "comments", map[int]any{1: ""}, true)
	assert.Empty(t, dirtied)
}

func TestRejectedValuesAreDropped(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	dirtied := fx.write(t, "series_index", map[int]any{1: "abc", 2: 3.5}, true)
	assert.Equal(t, []int{2}, dirtied.Sorted())

	dirtied = fx.write(t, "timestamp", map[int]any{1: nil, 2: ""}, true)
	assert.Empty(t, dirtied)

	dirtied = fx.write(t, "uuid", map[int]any{1: "not a uuid"}, true)
	assert.Empty(t, dirtied)
}

func TestUUIDCache(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	u := fx.tables["uuid"].(*table.UUID)
	old := u.For(1).(string)
	next := "6f9619ff-8b86-d011-b42d-00c04fc964ff"
	fx.write(t, "uuid", map[int]any{1: next}, true)

	id, ok := u.BookFor(next)
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	_, ok = u.BookFor(old)
	assert.False(t, ok)
	fx.assertStored(t, "uuid")
}

func TestEnumeration(t *testing.T) {
	shelf := meta.CustomColumn{
		Num: 1, Label: "shelf", Name: "Shelf", Datatype: meta.Enumeration, Normalized: true, Editable: true,
		Display: meta.Display{EnumValues: []string{"Read", "Unread"}},
	}
	fx := newFixture(t, []meta.CustomColumn{shelf}, threeBooks)
	dirtied := fx.write(t, "#shelf", map[int]any{1: "Read", 2: "Bogus"}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	assert.Equal(t, "Read", fx.tables["#shelf"].For(1))
	assert.Nil(t, fx.tables["#shelf"].For(2))

	dirtied = fx.write(t, "#shelf", map[int]any{1: nil}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	assert.Empty(t, fx.tables["#shelf"].(*table.ManyOne).IDMap)
	fx.assertStored(t, "#shelf")
}

func TestCustomSeriesIndex(t *testing.T) {
	saga := meta.CustomColumn{Num: 2, Label: "saga", Name: "Saga", Datatype: meta.Series, Normalized: true, Editable: true}
	fx := newFixture(t, []meta.CustomColumn{saga}, threeBooks)
	extra := func() float64 {
		rows, err := fx.db.Query("SELECT extra FROM books_custom_column_2_link WHERE book=1")
		require.NoError(t, err)
		defer rows.Close()
		require.True(t, rows.Next())
		var f float64
		require.NoError(t, rows.Scan(&f))
		return f
	}

	fx.write(t, "#saga", map[int]any{1: "Foundation [3]"}, true)
	assert.Equal(t, "Foundation", fx.tables["#saga"].For(1))
	assert.Equal(t, 3.0, fx.tables["#saga_index"].For(1))
	assert.Equal(t, 3.0, extra())

	// A new series without an index keeps the current one.
	fx.write(t, "#saga", map[int]any{1: "Empire"}, true)
	assert.Equal(t, 3.0, extra())
	fx.assertStored(t, "#saga_index")

	dirtied := fx.write(t, "#saga_index", map[int]any{1: 7.5, 2: 2.0}, true)
	assert.Equal(t, []int{1}, dirtied.Sorted())
	assert.Equal(t, 7.5, extra())

	fx.write(t, "#saga", map[int]any{1: nil}, true)
	assert.Nil(t, fx.tables["#saga_index"].For(1))
	fx.assertStored(t, "#saga")
	fx.assertStored(t, "#saga_index")
}

func TestCustomOneOneColumn(t *testing.T) {
	pages := meta.CustomColumn{Num: 3, Label: "pages", Name: "Pages", Datatype: meta.Int, Editable: true}
	fx := newFixture(t, []meta.CustomColumn{pages}, threeBooks)
	fx.write(t, "#pages", map[int]any{1: "320", 2: 12.0}, true)
	assert.Equal(t, int64(320), fx.tables["#pages"].For(1))
	assert.Equal(t, int64(12), fx.tables["#pages"].For(2))
	fx.write(t, "#pages", map[int]any{2: "none"}, true)
	assert.Nil(t, fx.tables["#pages"].For(2))
	fx.assertStored(t, "#pages")
}

func TestLanguagesKeepOrder(t *testing.T) {
	fx := newFixture(t, nil, threeBooks)
	fx.write(t, "languages", map[int]any{1: "de, en, und", 2: "en, de"}, true)
	assert.Equal(t, []string{"deu", "eng"}, fx.tables["languages"].For(1))
	assert.Equal(t, []string{"eng", "deu"}, fx.tables["languages"].For(2))
	fx.assertStored(t, "languages")
}
