// Package meta describes the fields of a library: datatype, cardinality and
// where each one is stored.
package meta // import "github.com/Xunop/e-oasis-meta/internal/meta"

import "strings"

type Datatype string

const (
	Text        Datatype = "text"
	Series      Datatype = "series"
	Datetime    Datatype = "datetime"
	Int         Datatype = "int"
	Float       Datatype = "float"
	Bool        Datatype = "bool"
	Rating      Datatype = "rating"
	Enumeration Datatype = "enumeration"
	Comments    Datatype = "comments"
	Composite   Datatype = "composite"
)

func (d Datatype) Valid() bool {
	switch d {
	case Text, Series, Datetime, Int, Float, Bool, Rating, Enumeration, Comments, Composite:
		return true
	}
	return false
}

// Cardinality is the relation between a book and the values of a field.
type Cardinality int

const (
	// OneOne fields hold one scalar per book, on the books row or in a side table.
	OneOne Cardinality = iota
	// ManyOne fields point a book at one row of a value table.
	ManyOne
	// ManyMany fields point a book at an ordered list of value rows.
	ManyMany
)

func (c Cardinality) String() string {
	switch c {
	case ManyOne:
		return "many-one"
	case ManyMany:
		return "many-many"
	}
	return "one-one"
}

// Multiple holds the separators of a multi-valued field. CacheToList splits
// the stored form, UIToList splits user input and ListToUI joins for display.
type Multiple struct {
	CacheToList string `json:"cache_to_list"`
	UIToList    string `json:"ui_to_list"`
	ListToUI    string `json:"list_to_ui"`
}

var (
	tagsMultiple    = &Multiple{CacheToList: ",", UIToList: ",", ListToUI: ", "}
	authorsMultiple = &Multiple{CacheToList: ",", UIToList: "&", ListToUI: " & "}
	customMultiple  = &Multiple{CacheToList: "|", UIToList: ",", ListToUI: ", "}
	customNames     = &Multiple{CacheToList: "|", UIToList: "&", ListToUI: " & "}
)

// Display carries presentation hints stored with custom columns.
type Display struct {
	EnumValues        []string `json:"enum_values,omitempty"`
	IsNames           bool     `json:"is_names,omitempty"`
	CompositeTemplate string   `json:"composite_template,omitempty"`
	Description       string   `json:"description,omitempty"`
}

// HasEnumValue reports whether v is one of the permitted enumeration values.
func (d Display) HasEnumValue(v string) bool {
	for _, e := range d.EnumValues {
		if e == v {
			return true
		}
	}
	return false
}

// Field is the static description of one book attribute.
type Field struct {
	Name        string
	Label       string
	DisplayName string
	Datatype    Datatype
	IsMultiple  *Multiple
	Kind        Cardinality

	// Table and Column locate the value: the books row, a side table keyed by
	// book, or the value table of a many-* field.
	Table  string
	Column string
	// LinkTable and LinkColumn implement many-* relations.
	LinkTable  string
	LinkColumn string

	IsCustom   bool
	IsEditable bool
	IsCategory bool
	// ColNum is the custom_columns id for custom fields.
	ColNum  int
	Display Display
}

// InBooks is true when the value is a column of the books table.
func (f *Field) InBooks() bool {
	return f.Table == "books"
}

// IsSeriesIndex is true for the "#label_index" companion of a custom series.
func (f *Field) IsSeriesIndex() bool {
	return f.IsCustom && strings.HasSuffix(f.Name, "_index") && f.Column == "extra"
}

// Derived fields are computed from other data and cannot be written.
func (f *Field) Derived() bool {
	if f.Datatype == Composite {
		return true
	}
	switch f.Name {
	case "id", "size", "path", "formats", "news":
		return true
	}
	return false
}

// CaseInsensitive fields compare values by their locale lower case form.
func (f *Field) CaseInsensitive() bool {
	if f.Kind == ManyMany {
		return f.Datatype == Text
	}
	return f.Datatype == Text || f.Datatype == Series
}
