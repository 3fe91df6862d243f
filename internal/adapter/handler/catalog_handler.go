package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

// ListProducts hides unavailable products from everyone but admins.
func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := domain.ProductFilter{
		Category:      r.URL.Query().Get("category"),
		AvailableOnly: !h.verification.IsAdmin(principal(r)) || r.URL.Query().Get("available") == "true",
	}

	products, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), principal(r), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.catalog.UpdateProduct(r.Context(), principal(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *HTTPHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req StockRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Expected == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "expected is required", "")
		return
	}

	p, err := h.catalog.SetStock(r.Context(), principal(r), chi.URLParam(r, "id"), *req.Expected, req.Stock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}
