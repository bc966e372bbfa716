package meta

import "sort"

// Fields is the set of fields known to one library.
type Fields struct {
	byName map[string]*Field
}

func (fs *Fields) Get(name string) (*Field, bool) {
	f, ok := fs.byName[name]
	return f, ok
}

func (fs *Fields) Add(f *Field) {
	fs.byName[f.Name] = f
}

func (fs *Fields) Remove(name string) {
	delete(fs.byName, name)
}

// Names returns field names sorted, standard fields first.
func (fs *Fields) Names() []string {
	names := make([]string, 0, len(fs.byName))
	for n := range fs.byName {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := names[i][0] == '#', names[j][0] == '#'
		if ci != cj {
			return cj
		}
		return names[i] < names[j]
	})
	return names
}

// Custom returns the custom fields.
func (fs *Fields) Custom() []*Field {
	var out []*Field
	for _, n := range fs.Names() {
		if f := fs.byName[n]; f.IsCustom {
			out = append(out, f)
		}
	}
	return out
}

func books(name, column string, dt Datatype) *Field {
	return &Field{Name: name, Label: name, Datatype: dt, Kind: OneOne, Table: "books", Column: column, IsEditable: true}
}

// Standard returns the built in fields of a calibre compatible library.
func Standard() *Fields {
	fs := &Fields{byName: make(map[string]*Field)}
	list := []*Field{
		{
			Name: "authors", Label: "authors", DisplayName: "Authors", Datatype: Text,
			IsMultiple: authorsMultiple, Kind: ManyMany,
			Table: "authors", Column: "name", LinkTable: "books_authors_link", LinkColumn: "author",
			IsEditable: true, IsCategory: true, Display: Display{IsNames: true},
		},
		{
			Name: "languages", Label: "languages", DisplayName: "Languages", Datatype: Text,
			IsMultiple: tagsMultiple, Kind: ManyMany,
			Table: "languages", Column: "lang_code", LinkTable: "books_languages_link", LinkColumn: "lang_code",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "tags", Label: "tags", DisplayName: "Tags", Datatype: Text,
			IsMultiple: tagsMultiple, Kind: ManyMany,
			Table: "tags", Column: "name", LinkTable: "books_tags_link", LinkColumn: "tag",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "series", Label: "series", DisplayName: "Series", Datatype: Series, Kind: ManyOne,
			Table: "series", Column: "name", LinkTable: "books_series_link", LinkColumn: "series",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "publisher", Label: "publisher", DisplayName: "Publisher", Datatype: Text, Kind: ManyOne,
			Table: "publishers", Column: "name", LinkTable: "books_publishers_link", LinkColumn: "publisher",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "rating", Label: "rating", DisplayName: "Rating", Datatype: Rating, Kind: ManyOne,
			Table: "ratings", Column: "rating", LinkTable: "books_ratings_link", LinkColumn: "rating",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "identifiers", Label: "identifiers", DisplayName: "Identifiers", Datatype: Text,
			IsMultiple: tagsMultiple, Kind: ManyMany, Table: "identifiers", Column: "val",
			IsEditable: true, IsCategory: true,
		},
		{
			Name: "formats", Label: "formats", DisplayName: "Formats", Datatype: Text,
			IsMultiple: tagsMultiple, Kind: ManyMany, Table: "data", Column: "format", IsCategory: true,
		},
		{
			Name: "comments", Label: "comments", DisplayName: "Comments", Datatype: Comments, Kind: OneOne,
			Table: "comments", Column: "text", IsEditable: true,
		},
		{Name: "news", Label: "news", DisplayName: "News", Datatype: Text, Kind: OneOne, IsCategory: true},
		{Name: "size", Label: "size", DisplayName: "Size", Datatype: Float, Kind: OneOne, Table: "data", Column: "uncompressed_size"},
	}
	for _, f := range list {
		fs.Add(f)
	}

	scalar := []*Field{
		books("title", "title", Text),
		books("sort", "sort", Text),
		books("author_sort", "author_sort", Text),
		books("timestamp", "timestamp", Datetime),
		books("pubdate", "pubdate", Datetime),
		books("last_modified", "last_modified", Datetime),
		books("series_index", "series_index", Float),
		books("uuid", "uuid", Text),
		books("path", "path", Text),
		books("id", "id", Int),
	}
	for _, f := range scalar {
		f.DisplayName = f.Name
		if f.Derived() {
			f.IsEditable = false
		}
		fs.Add(f)
	}
	return fs
}
