package transcript

import (
	"strings"
	"sync"
)

// CompletePredicate reports whether the accumulated buffer carries a complete
// structured payload ready for extraction. Implementations must be pure.
type CompletePredicate func(buffer string) bool

// FencedJSONComplete is the default completion check: the buffer contains a
// ```json opening fence and a closing fence somewhere after a closing brace.
func FencedJSONComplete(buffer string) bool {
	i := strings.Index(buffer, "```json")
	if i < 0 {
		return false
	}
	body := buffer[i+len("```json"):]
	brace := strings.LastIndex(body, "}")
	if brace < 0 {
		return false
	}
	return strings.Contains(body[brace:], "```")
}

// BalancedJSONComplete is a stricter predicate: the last fenced json block
// must be closed and its braces balanced.
func BalancedJSONComplete(buffer string) bool {
	open := strings.LastIndex(buffer, "```json")
	if open < 0 {
		return false
	}
	body := buffer[open+len("```json"):]
	end := strings.Index(body, "```")
	if end < 0 {
		return false
	}
	depth, seen := 0, false
	for _, r := range body[:end] {
		switch r {
		case '{':
			depth++
			seen = true
		case '}':
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return seen && depth == 0
}

// Completion carries the full buffer content at the moment it became ready,
// tagged with the generation it was derived from. Consumers must discard a
// Completion whose generation no longer matches the accumulator's.
type Completion struct {
	Text       string
	Generation uint64
}

// Accumulator appends model output fragments into a running buffer for the
// current order. The buffer grows monotonically until it either completes
// (ready signal) or is cleared by the user.
type Accumulator struct {
	mu       sync.Mutex
	text     string
	gen      uint64
	complete CompletePredicate
}

// NewAccumulator constructs an Accumulator. A nil predicate selects
// FencedJSONComplete.
func NewAccumulator(pred CompletePredicate) *Accumulator {
	if pred == nil {
		pred = FencedJSONComplete
	}
	return &Accumulator{complete: pred}
}

// Append adds a fragment to the buffer (separated by a single space) and
// reports whether the buffer now forms a complete payload. On ready the
// buffer is reset so stale prior text can never re-signal.
func (a *Accumulator) Append(fragment string) (Completion, bool) {
	frag := strings.TrimSpace(fragment)
	if frag == "" {
		return Completion{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.text == "" {
		a.text = frag
	} else {
		a.text += " " + frag
	}
	if !a.complete(a.text) {
		return Completion{}, false
	}
	c := Completion{Text: a.text, Generation: a.gen}
	a.text = ""
	return c, true
}

// Clear resets the buffer and advances the generation, canceling any pending
// partial order and invalidating in-flight extraction results.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	a.text = ""
	a.gen++
	a.mu.Unlock()
}

// Generation returns the current buffer generation.
func (a *Accumulator) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// Pending returns the current buffer content, for display purposes.
func (a *Accumulator) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}
