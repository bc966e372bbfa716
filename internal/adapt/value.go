package adapt

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var seriesIndexPattern = regexp.MustCompile(`^(.*)\s+\[([.0-9]+)\]$`)

// SplitSeries splits "Foundation [2.5]" into the series name and its index.
func SplitSeries(s string) (string, float64, bool) {
	m := seriesIndexPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return s, 0, false
	}
	idx, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return s, 0, false
	}
	return strings.TrimSpace(m[1]), idx, true
}

// Equal compares two canonical values.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case []string:
		y, ok := b.([]string)
		return ok && slices.Equal(x, y)
	case map[string]string:
		y, ok := b.(map[string]string)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			if w, ok := y[k]; !ok || w != v {
				return false
			}
		}
		return true
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
		return false
	}
	return a == b
}
