// Package resolve implements the symbolic strategy: a fixed-point solver
// over a system of declarative equations whose right-hand sides are
// compiled expr programs.
package resolve

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// reserved lists evaluation keywords a sanitized name must not collide
// with; colliding names get a var_ prefix.
var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "let": true,
	"if": true, "else": true, "nil": true, "true": true, "false": true,
	"matches": true, "contains": true, "startsWith": true, "endsWith": true,
	"all": true, "any": true, "one": true, "none": true, "map": true,
	"filter": true, "count": true, "len": true,
}

// NameMap is a bidirectional mapping between original variable names and
// resolver-safe tokens. Construction is a pure function of the name set:
// the same set always yields the same mapping, and the mapping is
// invertible for every accepted name.
type NameMap struct {
	toSafe     map[string]string
	toOriginal map[string]string
	order      []string // original names, sorted
}

// NewNameMap builds the mapping for a set of variable names. Names are
// processed in sorted order so collision suffixes are deterministic.
func NewNameMap(names []string) *NameMap {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	m := &NameMap{
		toSafe:     make(map[string]string, len(sorted)),
		toOriginal: make(map[string]string, len(sorted)),
		order:      sorted,
	}
	for _, name := range sorted {
		if _, dup := m.toSafe[name]; dup {
			continue
		}
		safe := Sanitize(name)
		if _, taken := m.toOriginal[safe]; taken {
			base := safe
			for n := 2; ; n++ {
				safe = base + "_" + strconv.Itoa(n)
				if _, taken := m.toOriginal[safe]; !taken {
					break
				}
			}
		}
		m.toSafe[name] = safe
		m.toOriginal[safe] = name
	}
	return m
}

// Sanitize rewrites one name to a resolver-safe token: any character
// outside [A-Za-z0-9_$] becomes '_', a leading character that is not a
// letter, underscore or '$' gets a '_' prefix, and reserved evaluation
// keywords get a var_ prefix.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isNameChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if safe == "" || !isNameStart(rune(safe[0])) {
		safe = "_" + safe
	}
	if reserved[safe] {
		safe = "var_" + safe
	}
	return safe
}

// Safe returns the safe token for an original name.
func (m *NameMap) Safe(name string) (string, bool) {
	s, ok := m.toSafe[name]
	return s, ok
}

// Original returns the original name for a safe token.
func (m *NameMap) Original(safe string) (string, bool) {
	o, ok := m.toOriginal[safe]
	return o, ok
}

// Originals returns the original names in sorted order.
func (m *NameMap) Originals() []string {
	return append([]string(nil), m.order...)
}

// Rewrite replaces variable references in equation text with safe tokens.
// Brace-delimited references ({name}) are rewritten regardless of content;
// bare references are rewritten on word boundaries. Longer names are
// replaced first so overlapping names do not clobber each other.
func (m *NameMap) Rewrite(text string) string {
	out := markupRef.ReplaceAllStringFunc(text, func(ref string) string {
		name := ref[1 : len(ref)-1]
		if safe, ok := m.toSafe[name]; ok {
			return safe
		}
		return name
	})

	byLength := append([]string(nil), m.order...)
	sort.Slice(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, name := range byLength {
		safe := m.toSafe[name]
		if name == safe || !isWordName(name) {
			continue
		}
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		out = pattern.ReplaceAllString(out, safe)
	}
	return out
}

var markupRef = regexp.MustCompile(`\{([^{}]+)\}`)

func isNameChar(r rune) bool {
	return r == '_' || r == '$' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isNameStart(r rune) bool {
	return r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isWordName(s string) bool {
	for _, r := range s {
		if !isNameChar(r) {
			return false
		}
	}
	return len(s) > 0
}
