package meta

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

// CustomColumn is one row of the custom_columns table.
type CustomColumn struct {
	Num        int
	Label      string
	Name       string
	Datatype   Datatype
	IsMultiple bool
	Normalized bool
	Editable   bool
	Display    Display
}

var labelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateLabel checks the lookup name of a new custom column.
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return errors.Errorf("invalid custom column label %q", label)
	}
	return nil
}

// IsNormalized tells whether values of dt live in their own value table.
func IsNormalized(dt Datatype) bool {
	switch dt {
	case Datetime, Comments, Int, Bool, Float, Composite:
		return false
	}
	return true
}

func (c *CustomColumn) valueTable() string {
	return fmt.Sprintf("custom_column_%d", c.Num)
}

func (c *CustomColumn) linkTable() string {
	return fmt.Sprintf("books_custom_column_%d_link", c.Num)
}

// DisplayJSON is the display column of the custom_columns row.
func (c *CustomColumn) DisplayJSON() string {
	b, _ := json.Marshal(c.Display)
	return string(b)
}

// ParseDisplay decodes the display column, tolerating empty values.
func ParseDisplay(raw string) Display {
	var d Display
	if raw == "" {
		return d
	}
	_ = json.Unmarshal([]byte(raw), &d)
	return d
}

// Fields returns the metadata of the column, plus the "_index" companion of a
// series column.
func (c *CustomColumn) Fields() []*Field {
	f := &Field{
		Name:        "#" + c.Label,
		Label:       c.Label,
		DisplayName: c.Name,
		Datatype:    c.Datatype,
		IsCustom:    true,
		IsEditable:  c.Editable && c.Datatype != Composite,
		ColNum:      c.Num,
		Display:     c.Display,
		Table:       c.valueTable(),
		Column:      "value",
	}
	if c.Datatype == Composite {
		f.Table, f.Column = "", ""
		return []*Field{f}
	}

	if !c.Normalized {
		f.Kind = OneOne
		return []*Field{f}
	}

	f.IsCategory = true
	f.LinkTable = c.linkTable()
	f.LinkColumn = "value"
	f.Kind = ManyOne
	if c.IsMultiple {
		f.Kind = ManyMany
		f.IsMultiple = customMultiple
		if c.Display.IsNames {
			f.IsMultiple = customNames
		}
	}
	if c.Datatype != Series {
		return []*Field{f}
	}
	idx := &Field{
		Name:        f.Name + "_index",
		Label:       c.Label + "_index",
		DisplayName: c.Name + " index",
		Datatype:    Float,
		Kind:        OneOne,
		IsCustom:    true,
		IsEditable:  f.IsEditable,
		ColNum:      c.Num,
		Table:       c.linkTable(),
		Column:      "extra",
	}
	return []*Field{f, idx}
}

func sqlType(dt Datatype) string {
	switch dt {
	case Int:
		return "INT"
	case Float:
		return "REAL"
	case Datetime:
		return "timestamp"
	case Bool:
		return "BOOL"
	}
	return "TEXT"
}

// CreateStatements returns the DDL that creates the storage of the column.
func (c *CustomColumn) CreateStatements() []string {
	vt, lt := c.valueTable(), c.linkTable()
	if c.Datatype == Composite {
		return nil
	}
	if !c.Normalized {
		return []string{
			fmt.Sprintf(`CREATE TABLE %s(
				id    INTEGER PRIMARY KEY AUTOINCREMENT,
				book  INTEGER,
				value %s NOT NULL,
				UNIQUE(book))`, vt, sqlType(c.Datatype)),
			fmt.Sprintf(`CREATE INDEX %s_idx ON %s (book)`, vt, vt),
			fmt.Sprintf(`CREATE TRIGGER fkc_delete_%d AFTER DELETE ON books
				BEGIN
					DELETE FROM %s WHERE book=OLD.id;
				END`, c.Num, vt),
		}
	}

	valueDef := "value TEXT NOT NULL COLLATE NOCASE"
	if c.Datatype == Rating {
		valueDef = "value INT NOT NULL CHECK(value > -1 AND value < 11)"
	}
	extra := ""
	if c.Datatype == Series {
		extra = "extra REAL,"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE %s(
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			%s,
			link  TEXT NOT NULL DEFAULT '',
			UNIQUE(value))`, vt, valueDef),
		fmt.Sprintf(`CREATE INDEX %s_idx ON %s (value)`, vt, vt),
		fmt.Sprintf(`CREATE TABLE %s(
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			book  INTEGER NOT NULL,
			value INTEGER NOT NULL,
			%s
			UNIQUE(book, value))`, lt, extra),
		fmt.Sprintf(`CREATE INDEX %s_aidx ON %s (value)`, lt, lt),
		fmt.Sprintf(`CREATE INDEX %s_bidx ON %s (book)`, lt, lt),
		fmt.Sprintf(`CREATE TRIGGER fkc_delete_%d AFTER DELETE ON books
			BEGIN
				DELETE FROM %s WHERE book=OLD.id;
			END`, c.Num, lt),
	}
}
