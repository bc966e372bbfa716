package util

import (
	"strings"
	"sync"

	"github.com/Xunop/e-oasis-meta/internal/config"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	localeMu  sync.Mutex
	localeKey string
	localeTag language.Tag
)

func currentLocale() language.Tag {
	want := config.Current().Locale
	localeMu.Lock()
	defer localeMu.Unlock()
	if want != localeKey || localeKey == "" {
		localeKey = want
		tag, err := language.Parse(want)
		if err != nil {
			tag = language.Und
		}
		localeTag = tag
	}
	return localeTag
}

// Lower is the locale aware lower case form used to decide whether two values
// of a text field are the same item.
func Lower(s string) string {
	// A Caser is stateful, so one is built per call.
	return cases.Lower(currentLocale()).String(s)
}

// EqualFold reports whether a and b are equal under full Unicode case folding.
func EqualFold(a, b string) bool {
	f := cases.Fold()
	return f.String(a) == f.String(b)
}

// CollapseSpace replaces runs of white space with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	langNamesOnce sync.Once
	langNames     map[string]string
)

// languageNames maps lower cased English language names to ISO 639 codes.
func languageNames() map[string]string {
	langNamesOnce.Do(func() {
		langNames = make(map[string]string)
		namer := display.English.Languages()
		for a := 'a'; a <= 'z'; a++ {
			for b := 'a'; b <= 'z'; b++ {
				base, err := language.ParseBase(string([]rune{a, b}))
				if err != nil {
					continue
				}
				if name := namer.Name(base); name != "" {
					langNames[strings.ToLower(name)] = base.ISO3()
				}
			}
		}
	})
	return langNames
}

// CanonicalizeLang turns a language code or English name ("en", "eng",
// "en-US", "English") into a three letter ISO 639 code. It returns "" when the
// input is not a language.
func CanonicalizeLang(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	switch lower {
	case "und", "zxx", "mis", "mul":
		return lower
	}
	if code, ok := languageNames()[lower]; ok {
		return code
	}
	base, err := language.ParseBase(lower)
	if err != nil {
		tag, err := language.Parse(raw)
		if err != nil {
			return ""
		}
		base, _ = tag.Base()
	}
	code := base.ISO3()
	if code == "und" {
		return ""
	}
	return code
}
