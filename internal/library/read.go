package library

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Xunop/e-oasis-meta/internal/locking"
	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/table"
)

func (l *Library) bookIDs() []int {
	m := l.tables["id"].(*table.OneOne).BookColMap
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Fields returns the metadata of every field, standard fields first.
func (l *Library) Fields(ctx context.Context) ([]*meta.Field, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	names := l.fields.Names()
	out := make([]*meta.Field, 0, len(names))
	for _, n := range names {
		f, _ := l.fields.Get(n)
		out = append(out, f)
	}
	return out, nil
}

func (l *Library) AllBookIDs(ctx context.Context) ([]int, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	return l.bookIDs(), nil
}

// FieldFor returns the canonical value of one field of a book, nil when the
// book has none.
func (l *Library) FieldFor(ctx context.Context, name string, book int) (any, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	t, err := l.table(name)
	if err != nil {
		return nil, err
	}
	if !l.hasBook(book) {
		return nil, errors.Wrapf(ErrNoSuchBook, "%d", book)
	}
	return t.For(book), nil
}

func (l *Library) itemTable(name string) (table.ItemTable, error) {
	t, err := l.table(name)
	if err != nil {
		return nil, err
	}
	it, ok := t.(table.ItemTable)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownField, "%s has no value-ids", name)
	}
	return it, nil
}

// FieldIDsFor returns the value-ids a book points at, in order.
func (l *Library) FieldIDsFor(ctx context.Context, name string, book int) ([]int, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	it, err := l.itemTable(name)
	if err != nil {
		return nil, err
	}
	return it.IDsFor(book), nil
}

// BooksForField returns the books pointing at a value-id.
func (l *Library) BooksForField(ctx context.Context, name string, item int) (model.IDSet, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	it, err := l.itemTable(name)
	if err != nil {
		return nil, err
	}
	return it.BooksFor(item).Clone(), nil
}

// GetIDMap returns a copy of the value-id to value map of a field.
func (l *Library) GetIDMap(ctx context.Context, name string) (map[int]any, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	it, err := l.itemTable(name)
	if err != nil {
		return nil, err
	}
	return it.Items(), nil
}

func (l *Library) BookIDForUUID(ctx context.Context, uuid string) (int, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return 0, err
	}
	defer g.Release()
	id, ok := l.tables["uuid"].(*table.UUID).BookFor(uuid)
	if !ok {
		return 0, errors.Wrapf(ErrNoSuchBook, "uuid %s", uuid)
	}
	return id, nil
}

// DirtiedBooks lists the books whose metadata changed since the last
// ClearDirtied.
func (l *Library) DirtiedBooks(ctx context.Context) ([]int, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	rows, err := l.db.Query("SELECT book FROM metadata_dirtied ORDER BY book")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMetadata returns a snapshot of every field of a book.
func (l *Library) GetMetadata(ctx context.Context, book int) (*model.Book, error) {
	g, err := l.hold(ctx, true)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	if !l.hasBook(book) {
		return nil, errors.Wrapf(ErrNoSuchBook, "%d", book)
	}

	b := &model.Book{
		ID:           book,
		Title:        l.str("title", book),
		SortTitle:    l.str("sort", book),
		Authors:      l.strs("authors", book),
		AuthorSort:   l.str("author_sort", book),
		Tags:         l.strs("tags", book),
		Series:       l.str("series", book),
		Publisher:    l.str("publisher", book),
		Languages:    l.strs("languages", book),
		Comments:     l.str("comments", book),
		Formats:      l.strs("formats", book),
		Path:         l.str("path", book),
		UUID:         l.str("uuid", book),
		TimeStamp:    l.date("timestamp", book),
		PublishDate:  l.date("pubdate", book),
		LastModified: l.date("last_modified", book),
	}
	b.SeriesIndex, _ = l.tables["series_index"].For(book).(float64)
	if r, ok := l.tables["rating"].For(book).(int64); ok {
		b.Rating = int(r)
	}
	b.Size, _ = l.tables["size"].For(book).(int64)
	if ids, ok := l.tables["identifiers"].For(book).(map[string]string); ok && len(ids) > 0 {
		b.Identifiers = ids
	}
	for _, f := range l.fields.Custom() {
		if v := l.tables[f.Name].For(book); v != nil {
			if b.Custom == nil {
				b.Custom = make(map[string]any)
			}
			b.Custom[f.Name] = v
		}
	}
	return b, nil
}

func (l *Library) str(name string, book int) string {
	s, _ := l.tables[name].For(book).(string)
	return s
}

func (l *Library) strs(name string, book int) []string {
	s, _ := l.tables[name].For(book).([]string)
	return s
}

func (l *Library) date(name string, book int) time.Time {
	t, _ := l.tables[name].For(book).(time.Time)
	return t
}

// FormatAbsPath returns the absolute path of a stored format of a book. The
// file is checked under the book's record lock, outside the library lock.
func (l *Library) FormatAbsPath(ctx context.Context, book int, format string) (string, error) {
	ctx, owner := locking.WithOwner(ctx)
	g, err := l.hold(ctx, true)
	if err != nil {
		return "", err
	}
	if !l.hasBook(book) {
		g.Release()
		return "", errors.Wrapf(ErrNoSuchBook, "%d", book)
	}
	dir := l.str("path", book)
	name, ok := l.tables["formats"].(*table.Formats).FileName(book, format)
	g.Release()
	if !ok {
		return "", errors.Errorf("book %d has no %s format", book, format)
	}

	path := l.files.FormatPath(dir, name, format)
	err = l.records.With(owner, book, func() error {
		_, err := l.files.Stat(path)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
