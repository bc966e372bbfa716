package util // import "github.com/Xunop/e-oasis-meta/internal/util"

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Xunop/e-oasis-meta/internal/config"
)

// Leading articles moved to the end by TitleSort, per ISO 639-2 language code.
var titleSortArticles = map[string][]string{
	"eng": {`A\s+`, `The\s+`, `An\s+`},
	"fra": {`Le\s+`, `La\s+`, `L'`, `L’`, `Les\s+`, `Un\s+`, `Une\s+`, `Des\s+`, `De\s+La\s+`, `De\s+`, `D'`, `D’`},
	"deu": {`Der\s+`, `Die\s+`, `Das\s+`, `Den\s+`, `Ein\s+`, `Eine\s+`, `Einen\s+`, `Dem\s+`, `Des\s+`, `Einem\s+`, `Eines\s+`},
	"spa": {`El\s+`, `La\s+`, `Lo\s+`, `Los\s+`, `Las\s+`, `Un\s+`, `Una\s+`, `Unos\s+`, `Unas\s+`},
	"ita": {`Lo\s+`, `Il\s+`, `L'`, `L’`, `La\s+`, `Gli\s+`, `I\s+`, `Le\s+`, `Uno\s+`, `Un\s+`, `Una\s+`, `Un'`, `Un’`},
	"por": {`A\s+`, `O\s+`, `Os\s+`, `As\s+`, `Um\s+`, `Uns\s+`, `Uma\s+`, `Umas\s+`},
	"nld": {`De\s+`, `Het\s+`, `Een\s+`, `'n\s+`, `'s\s+`},
}

var titleSortPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(titleSortArticles))
	for lang, articles := range titleSortArticles {
		m[lang] = regexp.MustCompile(`(?i)^(` + strings.Join(articles, "|") + `)`)
	}
	return m
}()

const titleIgnoreStarts = "'\"‘’‚‛“”′″"

// TitleSort returns the sort form of title, e.g. "The Sun" -> "Sun, The". lang
// is a three letter language code; unknown or empty codes use English.
func TitleSort(title, lang string) string {
	return TitleSortWith(title, lang, config.Current().TitleSeriesSorting)
}

func TitleSortWith(title, lang, order string) string {
	title = strings.TrimSpace(title)
	if order == "strictly_alphabetic" {
		return title
	}
	title = trimIgnoredStart(title)
	pat, ok := titleSortPatterns[lang]
	if !ok {
		pat = titleSortPatterns["eng"]
	}
	if match := pat.FindStringSubmatch(title); match != nil && match[1] != "" {
		prep := match[1]
		title = trimIgnoredStart(title[len(prep):] + ", " + prep)
	}
	return strings.TrimSpace(title)
}

func trimIgnoredStart(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size > 0 && strings.ContainsRune(titleIgnoreStarts, r) {
		return s[size:]
	}
	return s
}

var (
	authorCopyWords = []string{"Agency", "Corporation", "Company", "Co.", "Council",
		"Committee", "Inc.", "Institute", "National", "Society", "Club", "Team",
		"Software", "Games", "Entertainment", "Media", "Studios"}
	authorNamePrefixes = []string{"Mr", "Mrs", "Ms", "Dr", "Prof"}
	authorNameSuffixes = []string{"Jr", "Sr", "Inc", "Ph.D", "Phd", "MD", "M.D", "I", "II",
		"III", "IV", "Junior", "Senior"}

	copyWordSet = lowerSet(authorCopyWords, false)
	prefixSet   = lowerSet(authorNamePrefixes, true)
	suffixSet   = lowerSet(authorNameSuffixes, true)
)

func lowerSet(words []string, withDot bool) map[string]struct{} {
	m := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		w = strings.ToLower(w)
		m[w] = struct{}{}
		if withDot {
			m[w+"."] = struct{}{}
		}
	}
	return m
}

var bracketedText = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

// AuthorToAuthorSort computes the sort string of one author name following
// the active AuthorSortCopyMethod.
func AuthorToAuthorSort(author string) string {
	return AuthorSortWith(author, config.Current().AuthorSortCopyMethod)
}

// AuthorSortWith computes an author sort with an explicit method: invert moves
// the surname first ("John Smith" -> "Smith, John"), copy keeps the name,
// comma keeps names that already contain a comma, nocomma inverts without the
// comma.
func AuthorSortWith(author, method string) string {
	if author == "" {
		return ""
	}
	if method == "copy" {
		return author
	}
	sauthor := strings.TrimSpace(bracketedText.ReplaceAllString(author, ""))
	if method == "comma" && strings.Contains(sauthor, ",") {
		return author
	}
	tokens := strings.Fields(sauthor)
	if len(tokens) < 2 {
		return author
	}
	for _, tok := range tokens {
		if _, ok := copyWordSet[strings.ToLower(tok)]; ok {
			return author
		}
	}

	first := 0
	for ; first < len(tokens); first++ {
		if _, ok := prefixSet[strings.ToLower(tokens[first])]; !ok {
			break
		}
	}
	if first == len(tokens) {
		return author
	}
	last := len(tokens) - 1
	for ; last >= first; last-- {
		if _, ok := suffixSet[strings.ToLower(tokens[last])]; !ok {
			break
		}
	}
	if last < first {
		return author
	}

	suffix := strings.Join(tokens[last+1:], " ")
	atokens := append([]string{tokens[last]}, tokens[first:last]...)
	numToks := len(atokens)
	if suffix != "" {
		atokens = append(atokens, suffix)
	}
	if method != "nocomma" && numToks > 1 {
		atokens[0] += ","
	}
	return strings.Join(atokens, " ")
}

// AuthorsSort joins per-author sort strings the way books.author_sort stores
// them.
func AuthorsSort(sorts []string) string {
	return strings.Join(sorts, " & ")
}
