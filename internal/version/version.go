// Package version extracts version strings from plugin description text
// and compares version strings using a mixed numeric/alphanumeric
// ordering rule, trying the most specific pattern first and falling
// back to a bare dotted-number match last.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

// pattern pairs a compiled regex with the index of the capture group
// holding the version text.
type pattern struct {
	re    *regexp.Regexp
	group int
}

// patterns is deliberately ordered most-specific first, matching the
// upstream contract that the first matching, non-empty capture wins.
var patterns = []pattern{
	// "Version: 1.2.3-beta", "ver 1.2.3"
	{regexp.MustCompile(`(?i)\bversion[:\s]+([0-9]+(?:\.[0-9]+){1,3}(?:[-+][0-9A-Za-z.]+)?)`), 1},
	{regexp.MustCompile(`(?i)\bver[.\s]+([0-9]+(?:\.[0-9]+){1,3}(?:[-+][0-9A-Za-z.]+)?)`), 1},
	// "v1.2.3", "V1.2"
	{regexp.MustCompile(`(?i)\bv([0-9]+(?:\.[0-9]+){1,3}(?:[-+][0-9A-Za-z.]+)?)\b`), 1},
	// bare "1.2.3.4" or "1.2.3-beta2", the most permissive, tried last
	{regexp.MustCompile(`([0-9]+(?:\.[0-9]+){1,3}(?:[-+][0-9A-Za-z.]+)?)`), 1},
}

// Extract returns the first version substring found in text per the
// ordered pattern list, trimmed of surrounding whitespace. It returns
// "" if no pattern matches.
func Extract(text string) string {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(text); m != nil && p.group < len(m) {
			if v := strings.TrimSpace(m[p.group]); v != "" {
				return v
			}
		}
	}
	return ""
}

// Comparator is one of the condition grammar's comparison operators.
type Comparator string

const (
	Eq Comparator = "=="
	Ne Comparator = "!="
	Lt Comparator = "<"
	Gt Comparator = ">"
	Le Comparator = "<="
	Ge Comparator = ">="
)

// Compare implements the GLOSSARY's "version ordering": if both
// strings look like dotted numeric runs (optionally padded with
// zeros to equal length), compare component-wise numerically;
// otherwise fall back to an alphanumeric comparison where digit runs
// compare numerically and non-digit runs compare lexicographically.
// Returns -1, 0, or 1.
func Compare(a, b string) int {
	if isDotted(a) && isDotted(b) {
		return compareDotted(a, b)
	}
	return compareAlphanumeric(a, b)
}

// Satisfies reports whether Compare(value, target) satisfies cmp.
func Satisfies(value string, cmp Comparator, target string) bool {
	c := Compare(value, target)
	switch cmp {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Gt:
		return c > 0
	case Le:
		return c <= 0
	case Ge:
		return c >= 0
	default:
		return false
	}
}

func isDotted(s string) bool {
	if s == "" {
		return false
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

func compareDotted(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int64
		if i < len(as) {
			av, _ = strconv.ParseInt(as[i], 10, 64)
		}
		if i < len(bs) {
			bv, _ = strconv.ParseInt(bs[i], 10, 64)
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// token is a maximal run of either digits or non-digits.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	var curIsDigit bool
	for i, r := range s {
		isDigit := r >= '0' && r <= '9'
		if i > 0 && isDigit != curIsDigit {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
		curIsDigit = isDigit
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func compareAlphanumeric(a, b string) int {
	at := tokenize(a)
	bt := tokenize(b)
	n := len(at)
	if len(bt) > n {
		n = len(bt)
	}
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(at) {
			av = at[i]
		}
		if i < len(bt) {
			bv = bt[i]
		}
		aNum, aIsNum := asNumber(av)
		bNum, bIsNum := asNumber(bv)
		if aIsNum && bIsNum {
			if aNum != bNum {
				if aNum < bNum {
					return -1
				}
				return 1
			}
			continue
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func asNumber(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
