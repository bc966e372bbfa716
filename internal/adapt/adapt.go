// Package adapt turns loosely typed user input into the canonical value of a
// field.
//
// Canonical values are one of: nil (absent), string, []string, int64,
// float64, bool, time.Time or map[string]string.
package adapt // import "github.com/Xunop/e-oasis-meta/internal/adapt"

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Xunop/e-oasis-meta/internal/meta"
	"github.com/Xunop/e-oasis-meta/internal/model"
	"github.com/Xunop/e-oasis-meta/internal/util"
	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// ErrInvalidValue is returned for input an adapter cannot make sense of.
var ErrInvalidValue = errors.New("invalid value")

// Unknown replaces an absent title or author list.
const Unknown = "Unknown"

type Adapter func(v any) (any, error)

func invalid(v any, want string) error {
	return errors.Wrapf(ErrInvalidValue, "%v (%T) is not a %s", v, v, want)
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return strings.ToValidUTF8(string(s), "�"), true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

// SingleText strips the value; empty becomes absent.
func SingleText(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := toString(v)
	if !ok {
		return nil, invalid(v, "string")
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	return s, nil
}

// MultipleText splits strings on sep. Items are stripped and whitespace
// collapsed, occurrences of uiSep inside an item are replaced so that the item
// survives a later join, and empty items are dropped.
func MultipleText(sep, uiSep string) Adapter {
	uiSep = strings.TrimSpace(uiSep)
	repSep := ";"
	if uiSep == ";" {
		repSep = ","
	}
	return func(v any) (any, error) {
		var items []string
		switch x := v.(type) {
		case nil:
			return []string{}, nil
		case string, []byte:
			s, _ := toString(x)
			items = strings.Split(s, sep)
		case []string:
			items = x
		case []any:
			for _, y := range x {
				s, ok := toString(y)
				if !ok {
					return nil, invalid(y, "string")
				}
				items = append(items, s)
			}
		default:
			return nil, invalid(v, "list of strings")
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if uiSep != "" {
				item = strings.ReplaceAll(item, uiSep, repSep)
			}
			if item = util.CollapseSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

// Datetime parses ISO or locale formatted dates. Absent stays absent.
func Datetime(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.UTC(), nil
	}
	s, ok := toString(v)
	if !ok {
		return nil, invalid(v, "date")
	}
	if s = strings.TrimSpace(s); s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "unparseable date %q", s)
	}
	return t.UTC(), nil
}

// Date is Datetime reduced to the day. The day is kept at noon UTC so that it
// reads the same in every time zone. Absent becomes the undefined date.
func Date(v any) (any, error) {
	d, err := Datetime(v)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return model.UndefinedDate, nil
	}
	t := d.(time.Time)
	if model.IsDateUndefined(t) {
		return model.UndefinedDate, nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC), nil
}

// numberString returns "" for input that spells an absent number.
func numberString(v any) (string, bool) {
	s, ok := toString(v)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return "", true
	}
	return s, true
}

func Int(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	s, ok := numberString(v)
	if !ok {
		return nil, invalid(v, "number")
	}
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, invalid(v, "integer")
	}
	return n, nil
}

func Float(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	s, ok := numberString(v)
	if !ok {
		return nil, invalid(v, "number")
	}
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(v, "number")
	}
	return f, nil
}

// Bool is tri-valued: true, false or absent.
func Bool(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case int, int64, float64:
		n, _ := Int(x)
		return n.(int64) != 0, nil
	}
	s, ok := toString(v)
	if !ok {
		return nil, invalid(v, "bool")
	}
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	case "none", "":
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, invalid(v, "bool")
	}
	return n != 0, nil
}

// Rating is clamped to [0, 10]; zero is absent.
func Rating(v any) (any, error) {
	n, err := Int(v)
	if err != nil || n == nil {
		return nil, err
	}
	r := n.(int64)
	if r > 10 {
		r = 10
	}
	if r <= 0 {
		return nil, nil
	}
	return r, nil
}

// Languages canonicalizes each code and drops unknown, special and
// duplicate codes, keeping order.
func Languages(toList Adapter) Adapter {
	return func(v any) (any, error) {
		items, err := toList(v)
		if err != nil {
			return nil, err
		}
		out := []string{}
		seen := make(map[string]struct{})
		for _, item := range items.([]string) {
			code := util.CanonicalizeLang(item)
			switch code {
			case "", "und", "zxx", "mis", "mul":
				continue
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
		return out, nil
	}
}

// CleanIdentifier sanitizes one identifier. The kind is lower cased and cut
// at the first ':' with ',' removed, and the value gets ',' and ':' replaced
// by '|'.
func CleanIdentifier(kind, val string) (string, string) {
	kind = util.Lower(kind)
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		kind = kind[:i]
	}
	kind = strings.TrimSpace(strings.ReplaceAll(kind, ",", ""))
	val = strings.TrimSpace(val)
	val = strings.NewReplacer(",", "|", ":", "|").Replace(val)
	return kind, val
}

// Identifiers accepts a mapping or a list of "kind:value" strings. When two
// entries clean to the same kind the later one wins; mapping keys are taken in
// sorted order.
func Identifiers(toList Adapter) Adapter {
	type entry struct{ kind, val string }
	fromMap := func(m map[string]string) []entry {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]entry, len(keys))
		for i, k := range keys {
			entries[i] = entry{k, m[k]}
		}
		return entries
	}

	return func(v any) (any, error) {
		var entries []entry
		switch x := v.(type) {
		case nil:
		case map[string]string:
			entries = fromMap(x)
		case map[string]any:
			m := make(map[string]string, len(x))
			for k, val := range x {
				s, ok := toString(val)
				if !ok && val != nil {
					return nil, invalid(val, "string")
				}
				m[k] = s
			}
			entries = fromMap(m)
		default:
			items, err := toList(v)
			if err != nil {
				return nil, err
			}
			for _, item := range items.([]string) {
				k, val, _ := strings.Cut(item, ":")
				entries = append(entries, entry{k, val})
			}
		}
		out := make(map[string]string, len(entries))
		for _, e := range entries {
			if k, val := CleanIdentifier(e.kind, e.val); k != "" && val != "" {
				out[k] = val
			}
		}
		return out, nil
	}
}

// UUID accepts only well formed UUIDs.
func UUID(v any) (any, error) {
	s, err := SingleText(v)
	if err != nil || s == nil {
		return s, err
	}
	u := util.CanonicalUUID(s.(string))
	if u == "" {
		return nil, invalid(v, "uuid")
	}
	return u, nil
}

func identity(v any) (any, error) {
	return v, nil
}

func base(f *meta.Field) Adapter {
	switch f.Datatype {
	case meta.Text:
		if f.IsMultiple != nil {
			toList := MultipleText(f.IsMultiple.UIToList, f.IsMultiple.ListToUI)
			switch f.Name {
			case "languages":
				return Languages(toList)
			case "identifiers":
				return Identifiers(MultipleText(",", ","))
			}
			return toList
		}
		if f.Name == "uuid" {
			return UUID
		}
		return SingleText
	case meta.Series, meta.Comments, meta.Enumeration:
		return SingleText
	case meta.Datetime:
		if f.Name == "pubdate" {
			return Date
		}
		return Datetime
	case meta.Int:
		return Int
	case meta.Float:
		return Float
	case meta.Bool:
		return Bool
	case meta.Rating:
		return Rating
	}
	return identity
}

// For returns the adapter of f, including the per field defaults for absent
// values.
func For(f *meta.Field) Adapter {
	ans := base(f)
	switch f.Name {
	case "title":
		return func(v any) (any, error) {
			x, err := ans(v)
			if x == nil && err == nil {
				x = Unknown
			}
			return x, err
		}
	case "author_sort":
		return func(v any) (any, error) {
			x, err := ans(v)
			if x == nil && err == nil {
				x = ""
			}
			return x, err
		}
	case "authors":
		return func(v any) (any, error) {
			x, err := ans(v)
			if err != nil {
				return nil, err
			}
			names := x.([]string)
			for i, n := range names {
				names[i] = strings.ReplaceAll(n, "|", ",")
			}
			if len(names) == 0 {
				names = []string{Unknown}
			}
			return names, nil
		}
	case "timestamp", "last_modified":
		return func(v any) (any, error) {
			x, err := ans(v)
			if x == nil && err == nil {
				x = model.UndefinedDate
			}
			return x, err
		}
	case "series_index":
		return func(v any) (any, error) {
			x, err := ans(v)
			if x == nil && err == nil {
				x = 1.0
			}
			return x, err
		}
	}
	return ans
}

// Accept reports whether a raw value is written at all. timestamp, uuid and
// sort ignore empty input instead of storing a default.
func Accept(f *meta.Field, raw any) bool {
	switch f.Name {
	case "timestamp", "uuid", "sort":
		return !IsEmpty(raw)
	}
	return true
}

// IsEmpty is true for nil, empty strings and lists, false, zero and the
// undefined date.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case map[string]string:
		return len(x) == 0
	case bool:
		return !x
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case time.Time:
		return x.IsZero()
	}
	return false
}
