// Package course normalizes and matches free-text course names such as
// "8vo A", "Octavo A" or "1ro de Bachillerato A".
//
// All functions are pure.
package course

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ordinalSuffix is the abbreviation suffix for grades 1..10.
var ordinalSuffix = map[int]string{
	1: "ro", 2: "do", 3: "ro", 4: "to", 5: "to",
	6: "to", 7: "mo", 8: "vo", 9: "no", 10: "mo",
}

var spelledOrdinals = map[string]int{
	"primero": 1, "primer": 1,
	"segundo": 2,
	"tercero": 3, "tercer": 3,
	"cuarto":  4,
	"quinto":  5,
	"sexto":   6,
	"septimo": 7, "setimo": 7,
	"octavo":  8,
	"noveno":  9,
	"decimo":  10,
}

var fillers = map[string]bool{
	"el": true, "la": true, "los": true, "las": true,
	"un": true, "una": true, "de": true, "del": true,
	"curso": true, "paralelo": true, "grado": true,
}

var levelAliases = map[string]string{
	"bachillerato": "bach",
	"bgu":          "bach",
	"bach":         "bach",
	"basica":       "egb",
	"egb":          "egb",
}

// compactSection matches a grade glued to its section, as in "8a".
var compactSection = regexp.MustCompile(`^(\d{1,2})([a-z])$`)

// numericOrdinal matches "8", "8vo", "1er", "1ero", "3ro" and "8o" (from 8°).
var numericOrdinal = regexp.MustCompile(`^(\d{1,2})(er|ero|ro|do|to|mo|vo|no|o)?$`)

// Normalize returns the canonical form of a course name: accents folded,
// lower-cased, whitespace collapsed, spelled and numeric ordinals rewritten
// to abbreviations (1ro..10mo), level names aliased and articles dropped.
//
//	Normalize("Octavo  \"A\"")               == "8vo a"
//	Normalize("Primero de Bachillerato B") == "1ro bach b"
func Normalize(name string) string {
	tokens := tokenize(name)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if fillers[tok] {
			continue
		}
		if n, ok := gradeNumber(tok); ok {
			out = append(out, abbreviate(n))
			continue
		}
		if m := compactSection.FindStringSubmatch(tok); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 10 {
				out = append(out, abbreviate(n), m[2])
				continue
			}
		}
		if lvl, ok := levelAliases[tok]; ok {
			out = append(out, lvl)
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// Match reports whether a and b name the same course: equal normal forms, or
// the same grade number and section letter (and the same level when both
// name one).
func Match(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return structuralMatch(parse(na), parse(nb))
}

// FindMatchingCourse returns the first candidate equal to target, else the
// first whose normal form equals target's, else the first structural match.
func FindMatchingCourse(target string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if c == target {
			return c, true
		}
	}
	nt := Normalize(target)
	if nt == "" {
		return "", false
	}
	for _, c := range candidates {
		if Normalize(c) == nt {
			return c, true
		}
	}
	pt := parse(nt)
	for _, c := range candidates {
		if structuralMatch(pt, parse(Normalize(c))) {
			return c, true
		}
	}
	return "", false
}

// Suggestion is a ranked candidate for diagnostic display.
type Suggestion struct {
	Course string  `json:"course"`
	Score  float64 `json:"score"`
}

// Suggest ranks candidates against target, best first. Candidates with no
// resemblance are omitted.
//
// Scores: 1 for equal normal forms, 0.8 for a structural match, 0.5 when one
// normal form contains the other, 0.25 for the same grade only.
func Suggest(target string, candidates []string) []Suggestion {
	nt := Normalize(target)
	pt := parse(nt)

	out := []Suggestion{}
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" || nt == "" {
			continue
		}
		pc := parse(nc)

		var score float64
		switch {
		case nc == nt:
			score = 1
		case structuralMatch(pt, pc):
			score = 0.8
		case strings.Contains(nc, nt) || strings.Contains(nt, nc):
			score = 0.5
		case pt.grade != 0 && pt.grade == pc.grade:
			score = 0.25
		default:
			continue
		}
		out = append(out, Suggestion{Course: c, Score: score})
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Course, b.Course)
	})
	return out
}

// shape is the structural reading of a normalized course name.
type shape struct {
	grade   int
	section string
	level   string
}

func parse(normalized string) shape {
	var s shape
	for _, tok := range strings.Fields(normalized) {
		if n, ok := gradeNumber(tok); ok && s.grade == 0 {
			s.grade = n
			continue
		}
		if tok == "bach" || tok == "egb" {
			s.level = tok
			continue
		}
		if len(tok) == 1 && tok[0] >= 'a' && tok[0] <= 'z' {
			s.section = tok
		}
	}
	return s
}

func structuralMatch(a, b shape) bool {
	if a.grade == 0 || a.section == "" {
		return false
	}
	if a.grade != b.grade || a.section != b.section {
		return false
	}
	return a.level == "" || b.level == "" || a.level == b.level
}

func gradeNumber(tok string) (int, bool) {
	if n, ok := spelledOrdinals[tok]; ok {
		return n, true
	}
	m := numericOrdinal.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 10 {
		return 0, false
	}
	return n, true
}

func abbreviate(n int) string {
	return strconv.Itoa(n) + ordinalSuffix[n]
}

// fold removes diacritics: "Séptimo" becomes "Septimo".
var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func tokenize(name string) []string {
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}
	lower := cases.Lower(language.Und).String(folded)

	// Ordinal indicators become a plain "o" suffix so "1°" reads as "1o".
	lower = strings.NewReplacer("°", "o", "º", "o", "ª", "o").Replace(lower)

	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
