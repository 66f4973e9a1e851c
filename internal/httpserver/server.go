package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kim-el/voice-pos-system/internal/cart"
	"github.com/kim-el/voice-pos-system/internal/config"
	"github.com/kim-el/voice-pos-system/internal/notify"
	"github.com/kim-el/voice-pos-system/internal/relay"
	"github.com/kim-el/voice-pos-system/internal/store"
)

// SaleStore is the persistence surface the API needs.
type SaleStore interface {
	CompleteSale(ctx context.Context, lines []cart.Line, total float64) ([]cart.PersistedItem, error)
	RecentOrders(ctx context.Context, limit int) ([]store.OrderRow, error)
}

// Notifier publishes sale-completed events. Optional.
type Notifier interface {
	SaleCompleted(ctx context.Context, ev notify.SaleEvent) error
}

// Handlers bundles the HTTP API dependencies. Cart is the server-side
// register fed by relayed items; when nil the /api/cart routes answer 503.
type Handlers struct {
	Cfg      config.Config
	Store    SaleStore
	Notifier Notifier
	Hub      *relay.Hub
	Cart     *cart.Register
}

// New creates a configured Echo server with all routes registered.
func New(h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.Register(e)
	return e
}

// Register attaches routes to an Echo instance.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/config", h.getConfig)
	e.POST("/api/complete-sale", h.completeSale)
	e.GET("/api/orders", h.getOrders)
	e.GET("/api/cart", h.getCart)
	e.POST("/api/cart/tender", h.recordTender)
	e.POST("/api/cart/commit", h.commitCart)
	e.POST("/api/cart/cancel", h.cancelCart)
	e.GET("/ws", func(c echo.Context) error {
		return h.Hub.Serve(c.Response(), c.Request())
	})
}

func (h Handlers) getConfig(c echo.Context) error {
	apiKey := h.Cfg.GoogleAPIKey
	if apiKey == "" {
		apiKey = config.PlaceholderAPIKey
	}
	return c.JSON(http.StatusOK, map[string]string{
		"apiKey": apiKey,
		"prompt": h.Cfg.MenuPrompt,
	})
}

type saleItemPayload struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type completeSaleRequest struct {
	Items []saleItemPayload `json:"items"`
	Total float64           `json:"total"`
}

func (h Handlers) completeSale(c echo.Context) error {
	var req completeSaleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No items provided for sale"})
	}
	if h.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
	}

	lines := make([]cart.Line, 0, len(req.Items))
	for i, it := range req.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		lines = append(lines, cart.Line{ID: int64(i + 1), Name: it.Name, UnitPrice: it.Price, Quantity: qty})
	}

	saved, err := h.Store.CompleteSale(c.Request().Context(), lines, req.Total)
	if err != nil {
		log.Printf("complete-sale: persistence failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save sale"})
	}

	if h.Notifier != nil {
		ev := notify.SaleEvent{Items: saved, Total: req.Total}
		if err := h.Notifier.SaleCompleted(c.Request().Context(), ev); err != nil {
			log.Printf("complete-sale: notification failed: %v", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Sale completed",
		"items":   saved,
		"total":   req.Total,
	})
}

func (h Handlers) getCart(c echo.Context) error {
	if h.Cart == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server-side cart not configured"})
	}
	return c.JSON(http.StatusOK, h.Cart.Snapshot())
}

type tenderRequest struct {
	Digit int `json:"digit"`
}

func (h Handlers) recordTender(c echo.Context) error {
	if h.Cart == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server-side cart not configured"})
	}
	var req tenderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	h.Cart.RecordTender(req.Digit)
	return c.JSON(http.StatusOK, h.Cart.Snapshot())
}

func (h Handlers) commitCart(c echo.Context) error {
	if h.Cart == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server-side cart not configured"})
	}
	change, err := h.Cart.CommitSale(c.Request().Context())
	switch {
	case errors.Is(err, cart.ErrEmptySale), errors.Is(err, cart.ErrInsufficientPayment):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		log.Printf("cart commit: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to complete sale"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Sale completed",
		"change":  change,
	})
}

func (h Handlers) cancelCart(c echo.Context) error {
	if h.Cart == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server-side cart not configured"})
	}
	h.Cart.CancelSale()
	return c.JSON(http.StatusOK, h.Cart.Snapshot())
}

func (h Handlers) getOrders(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
	}
	rows, err := h.Store.RecentOrders(c.Request().Context(), 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if rows == nil {
		rows = []store.OrderRow{}
	}
	return c.JSON(http.StatusOK, rows)
}
