package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kim-el/voice-pos-system/internal/cart"
	"github.com/kim-el/voice-pos-system/internal/config"
	"github.com/kim-el/voice-pos-system/internal/notify"
	"github.com/kim-el/voice-pos-system/internal/relay"
	"github.com/kim-el/voice-pos-system/internal/store"
)

type fakeStore struct {
	completeErr error
	lastLines   []cart.Line
	lastTotal   float64
	orders      []store.OrderRow
}

func (f *fakeStore) CompleteSale(ctx context.Context, lines []cart.Line, total float64) ([]cart.PersistedItem, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.lastLines = lines
	f.lastTotal = total
	out := make([]cart.PersistedItem, 0, len(lines))
	for i, ln := range lines {
		out = append(out, cart.PersistedItem{
			ID:         int64(i + 1),
			Name:       ln.Name,
			Quantity:   ln.Quantity,
			Price:      ln.UnitPrice,
			TotalPrice: ln.UnitPrice * float64(ln.Quantity),
		})
	}
	return out, nil
}

func (f *fakeStore) RecentOrders(ctx context.Context, limit int) ([]store.OrderRow, error) {
	return f.orders, nil
}

type fakeNotifier struct {
	events []notify.SaleEvent
	err    error
}

func (f *fakeNotifier) SaleCompleted(ctx context.Context, ev notify.SaleEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestServer(h Handlers) http.Handler {
	if h.Hub == nil {
		h.Hub = relay.NewHub()
	}
	return New(h)
}

func doJSON(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(Handlers{})
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestGetConfig_PlaceholderWhenUnset(t *testing.T) {
	srv := newTestServer(Handlers{Cfg: config.Config{MenuPrompt: "warung menu"}})
	rec := doJSON(t, srv, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["apiKey"] != config.PlaceholderAPIKey {
		t.Errorf("apiKey: got %q", got["apiKey"])
	}
	if got["prompt"] != "warung menu" {
		t.Errorf("prompt: got %q", got["prompt"])
	}
}

func TestCompleteSale_Success(t *testing.T) {
	st := &fakeStore{}
	nt := &fakeNotifier{}
	srv := newTestServer(Handlers{Store: st, Notifier: nt})

	body := `{"items":[{"name":"Kopi","price":2.50,"quantity":2},{"name":"Teh ais","price":3.00,"quantity":0}],"total":8.00}`
	rec := doJSON(t, srv, http.MethodPost, "/api/complete-sale", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body.String())
	}

	if len(st.lastLines) != 2 {
		t.Fatalf("store saw %d lines", len(st.lastLines))
	}
	if st.lastLines[1].Quantity != 1 {
		t.Errorf("quantity below one must be coerced to one, got %d", st.lastLines[1].Quantity)
	}
	if st.lastTotal != 8.00 {
		t.Errorf("total: got %v", st.lastTotal)
	}

	var resp struct {
		Message string               `json:"message"`
		Items   []cart.PersistedItem `json:"items"`
		Total   float64              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Sale completed" || len(resp.Items) != 2 {
		t.Errorf("response: %+v", resp)
	}
	if len(nt.events) != 1 || nt.events[0].Total != 8.00 {
		t.Errorf("notifier events: %+v", nt.events)
	}
}

func TestCompleteSale_EmptyItemsRejected(t *testing.T) {
	srv := newTestServer(Handlers{Store: &fakeStore{}})
	rec := doJSON(t, srv, http.MethodPost, "/api/complete-sale", `{"items":[],"total":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestCompleteSale_NoStoreConfigured(t *testing.T) {
	srv := newTestServer(Handlers{})
	body := `{"items":[{"name":"Kopi","price":2.50,"quantity":1}],"total":2.50}`
	rec := doJSON(t, srv, http.MethodPost, "/api/complete-sale", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestCompleteSale_PersistenceFailure(t *testing.T) {
	srv := newTestServer(Handlers{Store: &fakeStore{completeErr: errors.New("db down")}})
	body := `{"items":[{"name":"Kopi","price":2.50,"quantity":1}],"total":2.50}`
	rec := doJSON(t, srv, http.MethodPost, "/api/complete-sale", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestCompleteSale_NotifierFailureDoesNotFailRequest(t *testing.T) {
	srv := newTestServer(Handlers{Store: &fakeStore{}, Notifier: &fakeNotifier{err: errors.New("broker down")}})
	body := `{"items":[{"name":"Kopi","price":2.50,"quantity":1}],"total":2.50}`
	rec := doJSON(t, srv, http.MethodPost, "/api/complete-sale", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("a failed notification must not fail the sale, got %d", rec.Code)
	}
}

func TestCartEndpoints_NotConfigured(t *testing.T) {
	srv := newTestServer(Handlers{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/cart"},
		{http.MethodPost, "/api/cart/tender"},
		{http.MethodPost, "/api/cart/commit"},
		{http.MethodPost, "/api/cart/cancel"},
	} {
		rec := doJSON(t, srv, tc.method, tc.path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestCartTenderAndCommit(t *testing.T) {
	register := cart.NewRegister(nil)
	register.AddItem("Burger", 12.99, 1)
	srv := newTestServer(Handlers{Cart: register})

	for _, d := range []int{1, 5, 0} {
		rec := doJSON(t, srv, http.MethodPost, "/api/cart/tender", fmt.Sprintf(`{"digit":%d}`, d))
		if rec.Code != http.StatusOK {
			t.Fatalf("tender digit %d: got %d", d, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/cart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get cart: got %d", rec.Code)
	}
	var snap cart.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Tendered != 150 || len(snap.Lines) != 1 {
		t.Fatalf("snapshot: %+v", snap)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/cart/commit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("commit: got %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Change float64 `json:"change"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if math.Abs(resp.Change-137.01) > 1e-9 {
		t.Errorf("change: got %v want 137.01", resp.Change)
	}
	if after := register.Snapshot(); len(after.Lines) != 0 || after.Tendered != 0 {
		t.Errorf("commit must clear the register: %+v", after)
	}
}

func TestCartCommit_EmptyCartRejected(t *testing.T) {
	srv := newTestServer(Handlers{Cart: cart.NewRegister(nil)})
	rec := doJSON(t, srv, http.MethodPost, "/api/cart/commit", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestCartCommit_InsufficientTenderRejected(t *testing.T) {
	register := cart.NewRegister(nil)
	register.AddItem("Burger", 12.99, 1)
	register.RecordTender(5)
	srv := newTestServer(Handlers{Cart: register})
	rec := doJSON(t, srv, http.MethodPost, "/api/cart/commit", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	if len(register.Snapshot().Lines) != 1 {
		t.Fatalf("refused commit must leave the cart open")
	}
}

func TestCartCancel(t *testing.T) {
	register := cart.NewRegister(nil)
	register.AddItem("Kopi", 2.50, 1)
	register.RecordTender(5)
	srv := newTestServer(Handlers{Cart: register})

	rec := doJSON(t, srv, http.MethodPost, "/api/cart/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if snap := register.Snapshot(); len(snap.Lines) != 0 || snap.Tendered != 0 {
		t.Fatalf("cancel must clear the register: %+v", snap)
	}
}

func TestGetOrders(t *testing.T) {
	st := &fakeStore{orders: []store.OrderRow{{
		ID: 1, ItemName: "Kopi", Quantity: 2, Price: 2.50, TotalPrice: 5.00, CreatedAt: time.Now(),
	}}}
	srv := newTestServer(Handlers{Store: st})
	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var rows []store.OrderRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemName != "Kopi" {
		t.Fatalf("rows: %+v", rows)
	}
}

func TestGetOrders_NoStoreConfigured(t *testing.T) {
	srv := newTestServer(Handlers{})
	rec := doJSON(t, srv, http.MethodGet, "/api/orders", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", rec.Code)
	}
}
