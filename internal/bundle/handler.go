package bundle

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger.Named("http")}
}

// Register mounts the bundle routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Post("/expand", h.handleExpand)
		r.Post("/group-keys", h.handleGroupKeys)
		r.Post("/reconcile", h.handleReconcile)
		r.Post("/price", h.handlePrice)
		r.Post("/availability", h.handleCartAvailability)
	})
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/availability", h.handleCheckoutAvailability)
		r.Post("/orders", h.handlePlaceOrder)
	})
	r.Post("/orders/aggregate", h.handleAggregate)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Put("/products/{sku}/bundle", h.handleSaveBundle)
	r.Get("/products/{id}/bundled-products", h.handleFindBundled)
	r.Post("/availability/{sku}/refresh", h.handleRefreshAffected)
	r.Post("/availability/bundles/{sku}/refresh", h.handleRefreshBundle)
}

func (h *Handler) handleExpand(w http.ResponseWriter, r *http.Request) {
	var change CartChange
	if !h.decode(w, r, &change) {
		return
	}
	out, err := h.service.ExpandBundleItems(r.Context(), &change)
	h.respond(w, out, err)
}

func (h *Handler) handleGroupKeys(w http.ResponseWriter, r *http.Request) {
	var change CartChange
	if !h.decode(w, r, &change) {
		return
	}
	out, err := h.service.ExpandBundleCartItemGroupKey(r.Context(), &change)
	h.respond(w, out, err)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var quote Quote
	if !h.decode(w, r, &quote) {
		return
	}
	out, err := h.service.PostSaveCartUpdateBundles(r.Context(), &quote)
	h.respond(w, out, err)
}

func (h *Handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	var quote Quote
	if !h.decode(w, r, &quote) {
		return
	}
	out, err := h.service.CalculateBundlePrice(r.Context(), &quote)
	h.respond(w, out, err)
}

func (h *Handler) handleCartAvailability(w http.ResponseWriter, r *http.Request) {
	var change CartChange
	if !h.decode(w, r, &change) {
		return
	}
	out, err := h.service.PreCheckCartAvailability(r.Context(), &change)
	if err == nil && !out.IsSuccess {
		writeJSON(w, http.StatusUnprocessableEntity, out)
		return
	}
	h.respond(w, out, err)
}

func (h *Handler) handleCheckoutAvailability(w http.ResponseWriter, r *http.Request) {
	var quote Quote
	if !h.decode(w, r, &quote) {
		return
	}
	resp := &CheckoutResponse{IsSuccess: true}
	if err := h.service.PreCheckCheckoutAvailability(r.Context(), &quote, resp); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, checkoutStatus(resp), resp)
}

// handlePlaceOrder runs the checkout availability check and, when it passes,
// stores the quote's lines and bundle items under a new order id.
func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var quote Quote
	if !h.decode(w, r, &quote) {
		return
	}

	resp := &CheckoutResponse{IsSuccess: true}
	if err := h.service.PreCheckCheckoutAvailability(r.Context(), &quote, resp); err != nil {
		h.fail(w, err)
		return
	}
	if !resp.IsSuccess {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	resp.SaveOrder = &SaveOrder{OrderID: uuid.NewString()}
	if err := h.service.SaveSalesOrderItems(r.Context(), &quote, resp); err != nil {
		h.logger.Error("order items not saved", zap.String("order_id", resp.SaveOrder.OrderID), zap.Error(err))
	}
	if err := h.service.SaveSalesOrderBundleItems(r.Context(), &quote, resp); err != nil {
		h.logger.Error("order bundle items not saved", zap.String("order_id", resp.SaveOrder.OrderID), zap.Error(err))
	}
	status := checkoutStatus(resp)
	if status == http.StatusOK {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var order Order
	if !h.decode(w, r, &order) {
		return
	}
	out, err := h.service.AggregateBundlePrice(r.Context(), &order)
	h.respond(w, out, err)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.FindOrder(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, out, err)
}

func (h *Handler) handleSaveBundle(w http.ResponseWriter, r *http.Request) {
	var product ProductConcrete
	if !h.decode(w, r, &product) {
		return
	}
	product.SKU = chi.URLParam(r, "sku")
	out, err := h.service.SaveBundledProducts(r.Context(), &product)
	h.respond(w, out, err)
}

func (h *Handler) handleFindBundled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid product ID", http.StatusBadRequest)
		return
	}
	products, err := h.service.FindBundledProductsByIDProductConcrete(r.Context(), id)
	if products == nil {
		products = []BundledProduct{}
	}
	h.respond(w, products, err)
}

func (h *Handler) handleRefreshAffected(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UpdateAffectedBundlesAvailability(r.Context(), chi.URLParam(r, "sku")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefreshBundle(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UpdateBundleAvailability(r.Context(), chi.URLParam(r, "sku")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotBundle), errors.Is(err, ErrProductNotFound), errors.Is(err, ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrPriceAllocationOverflow), errors.Is(err, ErrUnknownBundleDefinition), errors.Is(err, ErrInvalidBundle):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func checkoutStatus(resp *CheckoutResponse) int {
	if resp.IsSuccess {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
