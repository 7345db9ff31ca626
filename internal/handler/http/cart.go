package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/shopcart/internal/catalog"
	"github.com/utafrali/shopcart/internal/domain"
	"github.com/utafrali/shopcart/internal/store"
	apperrors "github.com/utafrali/shopcart/pkg/errors"
	"github.com/utafrali/shopcart/pkg/httputil"
	"github.com/utafrali/shopcart/pkg/middleware"
	"github.com/utafrali/shopcart/pkg/validator"
)

// notDurableWarning is sent in the Warning header when a mutation was applied
// in memory but not stored.
const notDurableWarning = `199 shopcart "cart change was not persisted"`

// ProductLookup resolves a product the request did not fully describe.
type ProductLookup interface {
	Product(ctx context.Context, id string) (catalog.Product, error)
}

// CartHandler exposes the cart store over HTTP. The store has a single
// mutator, so every call into it holds mu.
type CartHandler struct {
	mu     sync.Mutex
	store  *store.Store
	lookup ProductLookup
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler. lookup may be nil, in which
// case a new line always needs a price in the request.
func NewCartHandler(s *store.Store, lookup ProductLookup, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		store:  s,
		lookup: lookup,
		logger: logger,
	}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	snap := h.store.Snapshot()
	h.mu.Unlock()

	httputil.WriteData(w, http.StatusOK, toCartResponse(snap))
}

// GetLine handles GET /api/v1/cart/lines/{productId}
func (h *CartHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.PathParam(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	h.mu.Lock()
	line, found := h.store.LineFor(productID)
	h.mu.Unlock()

	if !found {
		httputil.WriteError(w, r, apperrors.NotFound("cart line", productID), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toLineResponse(line))
}

// Increment handles POST /api/v1/cart/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.store.Increment, true)
}

// Decrement handles POST /api/v1/cart/decrement. Decrement never creates a
// line, so the catalog is not consulted.
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.store.Decrement, false)
}

func (h *CartHandler) mutateLine(
	w http.ResponseWriter,
	r *http.Request,
	mutate func(context.Context, domain.ProductDescriptor) (domain.CartLine, error),
	seeds bool,
) {
	var req DescriptorRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteDecodeError(w, r, err)
		return
	}

	d := req.descriptor()
	if seeds {
		var err error
		if d, err = h.resolve(r.Context(), req); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}

	h.mu.Lock()
	line, err := mutate(r.Context(), d)
	total := h.store.Total()
	h.mu.Unlock()

	durable, err := h.checkDurable(w, err)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, LineMutationResponse{
		Line:    toLineResponse(line),
		Total:   total.String(),
		Durable: durable,
	})
}

// resolve builds the descriptor for a request. A request without a price for
// a product that has no line yet takes its fields from the catalog.
func (h *CartHandler) resolve(ctx context.Context, req DescriptorRequest) (domain.ProductDescriptor, error) {
	if req.hasPrice() {
		return req.descriptor(), nil
	}

	h.mu.Lock()
	_, exists := h.store.LineFor(req.ID)
	h.mu.Unlock()
	// An existing line keeps its stored fields, so the descriptor is not read.
	if exists {
		return req.descriptor(), nil
	}

	if h.lookup == nil {
		return domain.ProductDescriptor{}, apperrors.InvalidInput("price is required for a product not in the cart")
	}
	prod, err := h.lookup.Product(ctx, req.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogLoad) {
			return domain.ProductDescriptor{}, catalogUnavailable(err)
		}
		return domain.ProductDescriptor{}, err
	}
	d, err := prod.Descriptor()
	if err != nil {
		return domain.ProductDescriptor{}, apperrors.Internal(err)
	}
	return d, nil
}

// RemoveLine handles DELETE /api/v1/cart/lines/{productId}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.PathParam(w, r, "productId", chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	h.mu.Lock()
	err := h.store.RemoveLine(r.Context(), productID)
	snap := h.store.Snapshot()
	h.mu.Unlock()

	h.writeCart(w, r, snap, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	err := h.store.Clear(r.Context())
	snap := h.store.Snapshot()
	h.mu.Unlock()

	h.writeCart(w, r, snap, err)
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	purchased, err := h.store.Checkout(r.Context())
	h.mu.Unlock()

	durable, err := h.checkDurable(w, err)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, CheckoutResponse{
		Purchased: toCartResponse(purchased),
		Durable:   durable,
	})
}

// --- Helpers ---

func (h *CartHandler) writeCart(w http.ResponseWriter, r *http.Request, snap store.Snapshot, err error) {
	durable, err := h.checkDurable(w, err)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, CartMutationResponse{
		Cart:    toCartResponse(snap),
		Durable: durable,
	})
}

// checkDurable absorbs a persistence write failure: the mutation happened in
// memory, so the request still succeeds but is flagged as not durable. Any
// other error is returned unchanged.
func (h *CartHandler) checkDurable(w http.ResponseWriter, err error) (bool, error) {
	if err == nil {
		w.Header().Set(middleware.DurableHeader, "true")
		return true, nil
	}
	if errors.Is(err, store.ErrPersistenceWrite) {
		w.Header().Set(middleware.DurableHeader, "false")
		w.Header().Set("Warning", notDurableWarning)
		return false, nil
	}
	return false, err
}
