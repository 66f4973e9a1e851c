package menu

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Entry is one recognizable menu item derived from the session's
// configuration text.
type Entry struct {
	Name     string
	Price    float64
	Keywords []string
}

// Vocabulary is the per-session lookup of menu entries, keyed by lowercased
// name. Insertion order is preserved: heuristic free-text matching assigns
// quantities in this order, so it is part of the observable behavior.
type Vocabulary struct {
	keys  []string
	byKey map[string]Entry
}

// Matches shapes like "- Teh ais: RM3.00", "Burger - $12.99" or "Kopi $2.50".
var menuLineRe = regexp.MustCompile(`^-?\s*([^-:$]+?)[\s\-:]*(?:RM|rm|\$)?(\d+\.?\d*)`)

// Build parses configuration text one line at a time into a Vocabulary.
// Lines are rejected when the name is shorter than two characters, carries
// template or heading markers, or the price does not parse as a positive
// number. Given identical input the output is byte-identical.
func Build(configText string) *Vocabulary {
	v := &Vocabulary{byKey: make(map[string]Entry)}
	for _, line := range strings.Split(configText, "\n") {
		m := menuLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if utf8.RuneCountInString(name) < 2 {
			continue
		}
		if strings.Contains(name, "Example") || strings.Contains(name, "#") ||
			strings.Contains(name, "*") || strings.Contains(name, "Subtotal") ||
			strings.Contains(name, "Total") {
			continue
		}
		price, err := strconv.ParseFloat(m[2], 64)
		if err != nil || price <= 0 {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := v.byKey[key]; !dup {
			v.keys = append(v.keys, key)
		}
		v.byKey[key] = Entry{
			Name:     name,
			Price:    price,
			Keywords: strings.Fields(key),
		}
	}
	return v
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int { return len(v.keys) }

// Entries returns all entries in insertion order.
func (v *Vocabulary) Entries() []Entry {
	out := make([]Entry, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, v.byKey[k])
	}
	return out
}

// Lookup returns the entry for a lowercased name.
func (v *Vocabulary) Lookup(key string) (Entry, bool) {
	e, ok := v.byKey[strings.ToLower(key)]
	return e, ok
}
