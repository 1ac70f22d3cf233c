package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/metrics"
)

const (
	msgNotJSON         = "Request content type must be JSON"
	msgHandleExists    = "Handle already exists"
	msgProductNotFound = "Product not found"
)

// Inventory is the application surface the handlers drive.
type Inventory interface {
	CreateProduct(ctx context.Context, p inventory.NewProduct) (inventory.Product, error)
	GetProduct(ctx context.Context, handle string) (inventory.Product, error)
	AddStock(ctx context.Context, handle string, entry inventory.StockEntry) (inventory.StockRecord, error)
	ListInventory(ctx context.Context) ([]inventory.ProductInventory, error)
}

type Handler struct {
	svc    Inventory
	logger logrus.FieldLogger
}

func NewHandler(svc Inventory, logger logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	obj, err := decodeObject(w, r)
	if err != nil {
		writeText(w, http.StatusUnsupportedMediaType, msgNotJSON)
		return
	}
	p, err := parseNewProduct(obj)
	if err != nil {
		badRequest(w)
		return
	}

	if _, err := h.svc.CreateProduct(r.Context(), p); err != nil {
		if errors.Is(err, inventory.ErrHandleExists) {
			writeText(w, http.StatusConflict, msgHandleExists)
			return
		}
		h.internalError(w, r, err)
		return
	}

	metrics.ProductsCreated.Inc()
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	// chi matches on RawPath when it is set, leaving the param escaped
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(handle); err == nil {
			handle = unescaped
		}
	}

	entry, parseErr := h.readStockEntry(w, r)
	if parseErr != nil {
		// an unknown handle is reported before a bad body
		if _, err := h.svc.GetProduct(r.Context(), handle); err != nil {
			if errors.Is(err, inventory.ErrProductNotFound) {
				writeText(w, http.StatusNotFound, msgProductNotFound)
				return
			}
			h.internalError(w, r, err)
			return
		}
		badRequest(w)
		return
	}

	if _, err := h.svc.AddStock(r.Context(), handle, entry); err != nil {
		switch {
		case errors.Is(err, inventory.ErrProductNotFound):
			writeText(w, http.StatusNotFound, msgProductNotFound)
		case errors.Is(err, inventory.ErrIntegrity):
			badRequest(w)
		default:
			h.internalError(w, r, err)
		}
		return
	}

	metrics.StockRecordsAdded.Inc()
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) readStockEntry(w http.ResponseWriter, r *http.Request) (inventory.StockEntry, error) {
	obj, err := decodeObject(w, r)
	if err != nil {
		return inventory.StockEntry{}, err
	}
	return parseStockEntry(obj)
}

type inventoryItem struct {
	Handle    string      `json:"handle"`
	Weight    float64     `json:"weight"`
	Price     float64     `json:"price"`
	Inventory []stockPair `json:"inventory"`
}

// stockPair encodes as a two-element array: [location, qty].
type stockPair struct {
	Location string
	Qty      int64
}

func (p stockPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Location, p.Qty})
}

func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListInventory(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	items := make([]inventoryItem, 0, len(products))
	for _, p := range products {
		pairs := make([]stockPair, 0, len(p.Stock))
		for _, s := range p.Stock {
			pairs = append(pairs, stockPair{Location: s.Location, Qty: s.Qty})
		}
		items = append(items, inventoryItem{
			Handle:    p.Handle,
			Weight:    p.Weight,
			Price:     p.Price,
			Inventory: pairs,
		})
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("request failed")
	writeText(w, http.StatusInternalServerError, "internal error")
}

func badRequest(w http.ResponseWriter) {
	writeText(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
