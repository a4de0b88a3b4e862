package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/youngleee/thesis/internal/api/middleware"
	"github.com/youngleee/thesis/internal/apperr"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/inventory"
	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/logging"
	"github.com/youngleee/thesis/internal/realtime"
	"go.uber.org/zap"
)

type Handlers struct {
	carts        *cart.Service
	inventory    *inventory.Service
	hub          *realtime.Hub
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewHandlers(carts *cart.Service, inv *inventory.Service, hub *realtime.Hub, storeTimeout time.Duration, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		carts:        carts,
		inventory:    inv,
		hub:          hub,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// storeContext bounds the store calls made on behalf of one request.
func (h *Handlers) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.storeTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	products, err := h.inventory.ListProducts(ctx)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondJSONError(w, "Product not found", http.StatusNotFound)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	p, err := h.inventory.GetProduct(ctx, id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type setStockRequest struct {
	InStock *bool `json:"in_stock"`
}

func (h *Handlers) SetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondJSONError(w, "Invalid product id", http.StatusBadRequest)
		return
	}

	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InStock == nil {
		respondJSONError(w, "in_stock is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	p, err := h.inventory.SetAvailability(ctx, id, *req.InStock)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Cart Handlers

type cartResponse struct {
	Message string      `json:"message"`
	Cart    []cart.Item `json:"cart"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	c, err := h.carts.GetCart(ctx, middleware.OwnerFromContext(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Items)
}

// productID accepts a JSON number or a numeric string.
type productID int64

func (p *productID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.New("productId must be an integer")
	}
	*p = productID(n)
	return nil
}

type addToCartRequest struct {
	ProductID productID `json:"productId"`
	Quantity  *int      `json:"quantity"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == 0 {
		respondJSONError(w, "Product ID is required", http.StatusBadRequest)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	c, err := h.carts.AddItem(ctx, middleware.OwnerFromContext(r.Context()), int64(req.ProductID), quantity)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartResponse{Message: "Product added to cart", Cart: c.Items})
}

type updateCartRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "lineId")
	if !ok {
		respondJSONError(w, "Item not found in cart", http.StatusNotFound)
		return
	}

	var req updateCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		respondJSONError(w, "Valid quantity is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	c, err := h.carts.UpdateItem(ctx, middleware.OwnerFromContext(r.Context()), lineID, *req.Quantity)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Message: "Cart updated", Cart: c.Items})
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "lineId")
	if !ok {
		respondJSONError(w, "Item not found in cart", http.StatusNotFound)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	c, removed, err := h.carts.RemoveItem(ctx, middleware.OwnerFromContext(r.Context()), lineID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !removed {
		respondJSONError(w, "Item not found in cart", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{Message: "Item removed from cart", Cart: c.Items})
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.carts.ClearCart(ctx, middleware.OwnerFromContext(r.Context())); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// Debug Handlers

func (h *Handlers) Debug(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Server is running correctly",
		"routes":  "Debug route accessible",
	})
}

func (h *Handlers) DebugCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeContext(r)
	defer cancel()

	o := middleware.OwnerFromContext(r.Context())
	n, err := h.carts.ItemCount(ctx, o)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":     "Cart debug route",
		"owner":       o.Key(),
		"cartLength":  n,
		"connections": h.hub.Count(),
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondError maps a service error to its status. Server-side failures are
// logged with request context and reported without internals.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), logger).Error("request_failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("owner", middleware.OwnerFromContext(r.Context()).Key()),
			zap.Error(err),
		)
		respondJSONError(w, "Internal server error", status)
		return
	}
	respondJSONError(w, clientMessage(err), status)
}

// clientMessage returns the sentinel's text rather than the wrapped chain.
func clientMessage(err error) string {
	for _, known := range []error{
		cart.ErrUnknownProduct,
		cart.ErrLineNotFound,
		cart.ErrQuantityTooLarge,
		cart.ErrInvalidQuantity,
		cart.ErrInvalidProduct,
		product.ErrProductNotFound,
		product.ErrInvalidID,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
