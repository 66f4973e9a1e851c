package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptySale is returned by CommitSale when there are no lines or the
	// total is not positive. The cart is left unchanged.
	ErrEmptySale = errors.New("cannot complete an empty sale")
	// ErrInsufficientPayment is returned when the tendered amount does not
	// cover the total. The cart is left unchanged.
	ErrInsufficientPayment = errors.New("insufficient payment")
)

// Line is one item row of the open sale. IDs are unique per distinct item
// name within the open sale and are not reused after removal.
type Line struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// Sale is an immutable record of a committed sale.
type Sale struct {
	ID        string
	Timestamp time.Time
	Lines     []Line
	Total     float64
}

// PersistedItem is a stored line with the id assigned by the datastore.
type PersistedItem struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

// Persister is the external persistence collaborator, called exactly once per
// successful commit.
type Persister interface {
	CompleteSale(ctx context.Context, lines []Line, total float64) ([]PersistedItem, error)
}

// Snapshot is the observable state handed to change listeners after every
// mutation. The presentation layer renders from this; the register never
// reaches into a rendering surface.
type Snapshot struct {
	Lines       []Line  `json:"lines"`
	Total       float64 `json:"total"`
	Tendered    float64 `json:"tendered"`
	Change      float64 `json:"change"`
	TotalSales  float64 `json:"totalSales"`
	TotalOrders int     `json:"totalOrders"`
}

// Register is the cart aggregator for one cashier session: the open sale's
// lines and tendered amount, plus the session's sales history and running
// totals. Construct one per session; there is no shared global state.
type Register struct {
	persister Persister

	mu          sync.Mutex
	lines       []Line
	nextLineID  int64
	tendered    float64
	history     []Sale
	totalSales  float64
	totalOrders int
	onChange    func(Snapshot)
}

// NewRegister constructs a Register. The persister may be nil, in which case
// commits succeed without an external call (manual cart operation).
func NewRegister(p Persister) *Register {
	return &Register{persister: p, nextLineID: 1}
}

// OnChange registers a listener invoked after every state mutation.
func (r *Register) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// AddItem merges a quantity into the existing line with the same name, or
// creates a new line. Quantities below one count as one.
func (r *Register) AddItem(name string, unitPrice float64, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	r.mu.Lock()
	merged := false
	for i := range r.lines {
		if r.lines[i].Name == name {
			r.lines[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		r.lines = append(r.lines, Line{ID: r.nextLineID, Name: name, UnitPrice: unitPrice, Quantity: quantity})
		r.nextLineID++
	}
	r.notifyLocked()
}

// RemoveLine deletes a line from the open sale.
func (r *Register) RemoveLine(id int64) {
	r.mu.Lock()
	r.removeLocked(id)
	r.notifyLocked()
}

// SetQuantity replaces a line's quantity. A quantity of zero or less removes
// the line.
func (r *Register) SetQuantity(id int64, quantity int) {
	r.mu.Lock()
	if quantity <= 0 {
		r.removeLocked(id)
		r.notifyLocked()
		return
	}
	for i := range r.lines {
		if r.lines[i].ID == id {
			r.lines[i].Quantity = quantity
			break
		}
	}
	r.notifyLocked()
}

func (r *Register) removeLocked(id int64) {
	kept := r.lines[:0]
	for _, ln := range r.lines {
		if ln.ID != id {
			kept = append(kept, ln)
		}
	}
	r.lines = kept
}

// RecordTender appends a decimal digit to the tendered amount, numeric-pad
// style: tendered = tendered*10 + digit. Digits outside 0-9 are ignored.
func (r *Register) RecordTender(digit int) {
	if digit < 0 || digit > 9 {
		return
	}
	r.mu.Lock()
	r.tendered = r.tendered*10 + float64(digit)
	r.notifyLocked()
}

// ClearTender resets the tendered amount without touching the lines.
func (r *Register) ClearTender() {
	r.mu.Lock()
	r.tendered = 0
	r.notifyLocked()
}

// Total returns the open sale's total.
func (r *Register) Total() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalLocked()
}

func (r *Register) totalLocked() float64 {
	var sum float64
	for _, ln := range r.lines {
		sum += ln.UnitPrice * float64(ln.Quantity)
	}
	return sum
}

// Change returns max(0, tendered - total) for the open sale.
func (r *Register) Change() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.tendered - r.totalLocked(); c > 0 {
		return c
	}
	return 0
}

// CommitSale finalizes the open sale: validate, persist via the collaborator,
// and only after acknowledgment record history, compute change and clear the
// cart. A persistence failure leaves the sale open and untouched for retry.
func (r *Register) CommitSale(ctx context.Context) (float64, error) {
	r.mu.Lock()
	total := r.totalLocked()
	if len(r.lines) == 0 || total <= 0 {
		r.mu.Unlock()
		return 0, ErrEmptySale
	}
	if r.tendered < total {
		r.mu.Unlock()
		return 0, ErrInsufficientPayment
	}
	lines := make([]Line, len(r.lines))
	copy(lines, r.lines)
	tendered := r.tendered
	r.mu.Unlock()

	if r.persister != nil {
		if _, err := r.persister.CompleteSale(ctx, lines, total); err != nil {
			return 0, fmt.Errorf("persist sale: %w", err)
		}
	}

	r.mu.Lock()
	sale := Sale{ID: uuid.NewString(), Timestamp: time.Now(), Lines: lines, Total: total}
	r.history = append([]Sale{sale}, r.history...)
	r.totalSales += total
	r.totalOrders++
	change := tendered - total
	if change < 0 {
		change = 0
	}
	r.lines = nil
	r.tendered = 0
	r.notifyLocked()
	return change, nil
}

// CancelSale clears the lines and tendered amount without recording history.
func (r *Register) CancelSale() {
	r.mu.Lock()
	r.lines = nil
	r.tendered = 0
	r.notifyLocked()
}

// History returns committed sales, most recent first.
func (r *Register) History() []Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sale, len(r.history))
	copy(out, r.history)
	return out
}

// Snapshot returns the current observable state.
func (r *Register) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Register) snapshotLocked() Snapshot {
	lines := make([]Line, len(r.lines))
	copy(lines, r.lines)
	total := r.totalLocked()
	change := r.tendered - total
	if change < 0 {
		change = 0
	}
	return Snapshot{
		Lines:       lines,
		Total:       total,
		Tendered:    r.tendered,
		Change:      change,
		TotalSales:  r.totalSales,
		TotalOrders: r.totalOrders,
	}
}

// notifyLocked snapshots state, releases the lock and invokes the listener.
// Callers must hold r.mu; it is released here.
func (r *Register) notifyLocked() {
	fn := r.onChange
	var snap Snapshot
	if fn != nil {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
