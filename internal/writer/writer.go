// Package writer applies field updates to the store and the in-memory tables
// together, and reports which books changed.
package writer // import "github.com/Xunop/e-oasis-meta/internal/writer"

import (
	"sort"
	"time"

	"github.com/Xunop/e-oasis-meta/internal/adapt"
	"github.com/Xunop/e-oasis-meta/internal/log"
	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/store"
	"github.com/Xunop/e-oasis-meta/internal/table"
	"go.uber.org/zap"
)

type Strategy int

const (
	Dummy Strategy = iota
	OneOneInBooks
	Title
	UUID
	OneOneInOther
	CustomSeriesIndex
	ManyOne
	ManyMany
	Identifiers
)

func (s Strategy) String() string {
	switch s {
	case OneOneInBooks:
		return "one-one-in-books"
	case Title:
		return "title"
	case UUID:
		return "uuid"
	case OneOneInOther:
		return "one-one-in-other"
	case CustomSeriesIndex:
		return "custom-series-index"
	case ManyOne:
		return "many-one"
	case ManyMany:
		return "many-many"
	case Identifiers:
		return "identifiers"
	}
	return "dummy"
}

func strategyFor(f *meta.Field) Strategy {
	switch {
	case f.Derived():
		return Dummy
	case f.IsSeriesIndex():
		return CustomSeriesIndex
	case f.Name == "identifiers":
		return Identifiers
	case f.Name == "uuid":
		return UUID
	case f.Name == "title":
		return Title
	case f.Kind == meta.ManyMany:
		return ManyMany
	case f.Kind == meta.ManyOne:
		return ManyOne
	case f.InBooks():
		return OneOneInBooks
	}
	return OneOneInOther
}

// Set holds the writer of every field. Writers reach each other through it:
// title drives sort, authors drive author_sort, series drive their index.
type Set struct {
	tables  map[string]table.Table
	writers map[string]*Writer
}

func NewSet(tables map[string]table.Table) *Set {
	s := &Set{tables: tables, writers: make(map[string]*Writer, len(tables))}
	for _, t := range tables {
		s.add(t)
	}
	return s
}

func (s *Set) add(t table.Table) *Writer {
	f := t.Field()
	w := &Writer{
		field:    f,
		table:    t,
		adapter:  adapt.For(f),
		strategy: strategyFor(f),
		set:      s,
	}
	s.writers[f.Name] = w
	return w
}

// Add registers the table of a field created after the set was built.
func (s *Set) Add(t table.Table) *Writer {
	s.tables[t.Field().Name] = t
	return s.add(t)
}

func (s *Set) Writer(name string) (*Writer, bool) {
	w, ok := s.writers[name]
	return w, ok
}

func (s *Set) mustWriter(name string) *Writer {
	w, ok := s.writers[name]
	if !ok {
		panic("writer: no writer for " + name)
	}
	return w
}

// Writer updates one field.
type Writer struct {
	field    *meta.Field
	table    table.Table
	adapter  adapt.Adapter
	strategy Strategy
	set      *Set
}

func (w *Writer) Field() *meta.Field { return w.field }
func (w *Writer) Strategy() Strategy { return w.strategy }
func (w *Writer) Table() table.Table { return w.table }

// SetBooks adapts every value and writes the ones that change the stored
// state. Values the adapter rejects are dropped. The returned set holds every
// book whose stored state changed; store failures are returned as is.
func (w *Writer) SetBooks(conn store.Conn, vals map[int]any, allowCaseChange bool) (model.IDSet, error) {
	if w.strategy == Dummy {
		return model.NewIDSet(), nil
	}

	var indices map[int]float64
	if w.hasSeriesIndex() {
		vals, indices = w.splitSeries(vals)
	}

	adapted := w.adapt(vals)
	dirtied, err := w.apply(conn, adapted, allowCaseChange)
	if err != nil {
		return dirtied, err
	}

	if len(indices) > 0 {
		iw := w.set.mustWriter(w.indexField())
		raw := make(map[int]any, len(indices))
		for b, idx := range indices {
			raw[b] = idx
		}
		more, err := iw.SetBooks(conn, raw, false)
		dirtied.Update(more)
		if err != nil {
			return dirtied, err
		}
	}
	return dirtied, nil
}

func (w *Writer) adapt(vals map[int]any) map[int]any {
	out := make(map[int]any, len(vals))
	for book, raw := range vals {
		if !adapt.Accept(w.field, raw) {
			continue
		}
		v, err := w.adapter(raw)
		if err != nil {
			log.Debug("Dropping value the field cannot take",
				zap.String("field", w.field.Name), zap.Int("book", book), zap.Error(err))
			continue
		}
		if !adapt.Accept(w.field, v) {
			continue
		}
		if w.field.Datatype == meta.Enumeration && v != nil && !w.field.Display.HasEnumValue(v.(string)) {
			log.Debug("Dropping value outside the enumeration",
				zap.String("field", w.field.Name), zap.Int("book", book), zap.Any("value", v))
			continue
		}
		out[book] = v
	}
	return out
}

func (w *Writer) apply(conn store.Conn, vals map[int]any, allowCaseChange bool) (model.IDSet, error) {
	if len(vals) == 0 {
		return model.NewIDSet(), nil
	}
	switch w.strategy {
	case OneOneInBooks:
		return w.oneOneInBooks(conn, vals, false)
	case Title:
		return w.title(conn, vals)
	case UUID:
		return w.uuid(conn, vals)
	case OneOneInOther:
		return w.oneOneInOther(conn, vals)
	case CustomSeriesIndex:
		return w.customSeriesIndex(conn, vals)
	case ManyOne:
		if w.field.Datatype == meta.Enumeration {
			allowCaseChange = false
		}
		return w.manyOne(conn, vals, allowCaseChange)
	case ManyMany:
		return w.manyMany(conn, vals, allowCaseChange)
	case Identifiers:
		return w.identifiers(conn, vals)
	}
	return model.NewIDSet(), nil
}

func (w *Writer) hasSeriesIndex() bool {
	if w.field.Datatype != meta.Series || w.strategy != ManyOne {
		return false
	}
	_, ok := w.set.writers[w.indexField()]
	return ok
}

func (w *Writer) indexField() string {
	if w.field.IsCustom {
		return w.field.Name + "_index"
	}
	return "series_index"
}

// splitSeries strips "[index]" suffixes off series names. Custom series keep
// their current index (or 1.0) when none is given, since rewriting the link
// row resets it.
func (w *Writer) splitSeries(vals map[int]any) (map[int]any, map[int]float64) {
	names := make(map[int]any, len(vals))
	indices := make(map[int]float64)
	idxTable := w.set.tables[w.indexField()]
	for book, raw := range vals {
		names[book] = raw
		s, isString := raw.(string)
		if isString {
			if name, idx, ok := adapt.SplitSeries(s); ok {
				names[book] = name
				indices[book] = idx
				continue
			}
		}
		if !w.field.IsCustom {
			continue
		}
		if cur, ok := idxTable.For(book).(float64); ok {
			indices[book] = cur
		} else {
			indices[book] = 1.0
		}
	}
	return names, indices
}

func sortedBooks[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for b := range m {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// sqlValue converts a canonical value to a statement argument.
func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return model.FormatDBTime(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return v
}
