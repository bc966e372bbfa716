package table

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/store"
)

func openDB(t *testing.T, stmts ...string) *store.DB {
	t.Helper()
	d, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	for _, stmt := range stmts {
		require.NoError(t, d.Execute(stmt), stmt)
	}
	require.NoError(t, d.Commit())
	return d
}

func read(t *testing.T, d *store.DB, name string) Table {
	t.Helper()
	f, ok := meta.Standard().Get(name)
	require.True(t, ok)
	tbl := New(f)
	require.NoError(t, tbl.Read(d))
	return tbl
}

func count(t *testing.T, d *store.DB, stmt string) int {
	t.Helper()
	rows, err := d.Query(stmt)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	return n
}

func TestReadAuthorsKeepsOrder(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A'), (2, 'B')",
		"INSERT INTO authors(id, name, sort) VALUES (10, 'Smith| John', 'Smith, John'), (11, 'Alice Jones', NULL)",
		"INSERT INTO books_authors_link(id, book, author) VALUES (1, 1, 11), (2, 1, 10), (3, 2, 10)",
	)
	authors := read(t, d, "authors").(*Authors)

	assert.Equal(t, []string{"Alice Jones", "Smith, John"}, authors.For(1))
	assert.Equal(t, []int{11, 10}, authors.IDsFor(1))
	assert.Equal(t, "Jones, Alice", authors.ASortMap[11])
	assert.Equal(t, []string{"Jones, Alice", "Smith, John"}, authors.SortFor(1))
	assert.ElementsMatch(t, []int{1, 2}, authors.BooksFor(10).Sorted())
}

func TestReadLanguagesByItemOrder(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A')",
		"INSERT INTO languages(id, lang_code) VALUES (1, 'eng'), (2, 'fra')",
		"INSERT INTO books_languages_link(id, book, lang_code, item_order) VALUES (1, 1, 1, 1), (2, 1, 2, 0)",
	)
	langs := read(t, d, "languages")
	assert.Equal(t, []string{"fra", "eng"}, langs.For(1))
}

func TestRatingZeroIsAbsent(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A'), (2, 'B')",
		"INSERT INTO ratings(id, rating) VALUES (1, 0), (2, 8)",
		"INSERT INTO books_ratings_link(book, rating) VALUES (1, 1), (2, 2)",
	)
	ratings := read(t, d, "rating").(*ManyOne)
	assert.Nil(t, ratings.For(1))
	assert.Equal(t, int64(8), ratings.For(2))
	assert.NotContains(t, ratings.IDMap, 1)
}

func TestOneOneTables(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title, series_index, pubdate) VALUES (1, 'The Road', 2.5, '2006-09-26 12:00:00+00:00')",
		"INSERT INTO comments(book, text) VALUES (1, 'bleak')",
	)
	title := read(t, d, "title")
	assert.Equal(t, "The Road", title.For(1))
	assert.Equal(t, "Road, The", read(t, d, "sort").For(1))
	assert.Equal(t, 2.5, read(t, d, "series_index").For(1))
	assert.Equal(t, "bleak", read(t, d, "comments").For(1))
	assert.Equal(t, 2006, read(t, d, "pubdate").For(1).(interface{ Year() int }).Year())

	u := read(t, d, "uuid").(*UUID)
	id, ok := u.BookFor(u.For(1).(string))
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestFormatsAndSize(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A')",
		"INSERT INTO data(book, format, uncompressed_size, name) VALUES (1, 'pdf', 300, 'a'), (1, 'EPUB', 100, 'a')",
	)
	formats := read(t, d, "formats").(*Formats)
	assert.Equal(t, []string{"EPUB", "PDF"}, formats.For(1))
	name, ok := formats.FileName(1, "epub")
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	assert.Equal(t, 300.0, read(t, d, "size").For(1))
}

func TestIdentifiersRead(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (5, 'A'), (6, 'B')",
		"INSERT INTO identifiers(book, type, val) VALUES (5, 'isbn', '111'), (5, 'amazon', 'AAA'), (6, 'isbn', '222')",
	)
	ids := read(t, d, "identifiers").(*Identifiers)
	if diff := cmp.Diff(map[string]string{"isbn": "111", "amazon": "AAA"}, ids.For(5)); diff != "" {
		t.Errorf("identifiers mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{5, 6}, ids.BooksWith("isbn").Sorted())

	ids.Set(5, map[string]string{"isbn": "333"})
	assert.Equal(t, []int{}, ids.BooksWith("amazon").Sorted())

	_, err := ids.RemoveBooks([]int{6}, d)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, ids.BooksWith("isbn").Sorted())
}

func TestRemoveBooksCollectsOrphans(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A'), (2, 'B')",
		"INSERT INTO tags(id, name) VALUES (1, 'sf'), (2, 'fantasy')",
		"INSERT INTO books_tags_link(book, tag) VALUES (1, 1), (1, 2), (2, 1)",
		"INSERT INTO publishers(id, name) VALUES (1, 'Tor')",
		"INSERT INTO books_publishers_link(book, publisher) VALUES (1, 1)",
	)
	tags := read(t, d, "tags").(*ManyMany)
	removed, err := tags.RemoveBooks([]int{1}, d)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, removed)
	assert.Equal(t, map[int]any{1: "sf"}, tags.Items())

	pubs := read(t, d, "publisher").(*ManyOne)
	removed, err = pubs.RemoveBooks([]int{1}, d)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, removed)
	assert.Empty(t, pubs.IDMap)
	require.NoError(t, d.Commit())

	assert.Equal(t, 1, count(t, d, "SELECT COUNT(*) FROM tags"))
	assert.Equal(t, 0, count(t, d, "SELECT COUNT(*) FROM publishers"))
}

// SQLite's NOCASE only folds ASCII, so these rows can coexist in the store
// while being the same value under locale lower casing.
func TestFixCaseDuplicates(t *testing.T) {
	d := openDB(t,
		"INSERT INTO books(id, title) VALUES (1, 'A'), (2, 'B'), (3, 'C')",
		"INSERT INTO series(id, name) VALUES (1, 'Émile'), (2, 'émile')",
		"INSERT INTO books_series_link(book, series) VALUES (1, 1), (2, 2)",
		"INSERT INTO tags(id, name) VALUES (1, 'Été'), (2, 'été'), (3, 'x')",
		"INSERT INTO books_tags_link(id, book, tag) VALUES (1, 3, 2), (2, 3, 3), (3, 3, 1)",
	)
	series := read(t, d, "series").(*ManyOne)
	removed, err := series.FixCaseDuplicates(d)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, removed)
	assert.Equal(t, 1, series.BookColMap[2])
	assert.Equal(t, []int{1, 2}, series.BooksFor(1).Sorted())

	tags := read(t, d, "tags").(*ManyMany)
	removed, err = tags.FixCaseDuplicates(d)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, removed)
	assert.Equal(t, []int{1, 3}, tags.IDsFor(3))
	require.NoError(t, d.Commit())

	reread := read(t, d, "tags").(*ManyMany)
	if diff := cmp.Diff(tags.BookColMap, reread.BookColMap); diff != "" {
		t.Errorf("store and memory disagree (-mem +store):\n%s", diff)
	}
	assert.Equal(t, 0, count(t, d, "SELECT COUNT(*) FROM books_series_link WHERE series=2"))
}

func TestReadBook(t *testing.T) {
	d := openDB(t, "INSERT INTO books(id, title) VALUES (1, 'A')")
	title := read(t, d, "title").(*OneOne)
	u := read(t, d, "uuid").(*UUID)
	old := u.For(1).(string)

	require.NoError(t, d.Execute("UPDATE books SET title='B', uuid='6f9619ff-8b86-d011-b42d-00c04fc964ff' WHERE id=1"))
	require.NoError(t, d.Execute("INSERT INTO books(id, title) VALUES (2, 'C')"))
	require.NoError(t, d.Commit())

	for _, b := range []int{1, 2} {
		require.NoError(t, title.ReadBook(d, b))
		require.NoError(t, u.ReadBook(d, b))
	}
	assert.Equal(t, "B", title.For(1))
	assert.Equal(t, "C", title.For(2))
	_, ok := u.BookFor(old)
	assert.False(t, ok)
	id, ok := u.BookFor("6f9619ff-8b86-d011-b42d-00c04fc964ff")
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	require.NoError(t, title.ReadBook(d, 9))
	assert.Nil(t, title.For(9))
}
