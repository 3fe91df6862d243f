package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/core/service"
)

func (h *HTTPHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	filter := domain.PaymentFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: domain.PaymentStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}

	payments, err := h.verification.ListPayments(r.Context(), principal(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

func (h *HTTPHandler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.verification.GetPaymentDetail(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentDetailResponse{
		PaymentResponse: toPaymentResponse(detail.Payment),
		Products:        toProductResponses(detail.Products),
	})
}

func (h *HTTPHandler) AdminGetProof(w http.ResponseWriter, r *http.Request) {
	p, err := h.verification.GetPayment(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.serveProof(w, r, p)
}

func (h *HTTPHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.verification.Verify(r.Context(), principal(r), chi.URLParam(r, "id"), req.Decision, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *HTTPHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.verification.Complete(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *HTTPHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.verification.UpdateNotes(r.Context(), principal(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *HTTPHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.verification.CreateCharge(r.Context(), principal(r), service.ChargeInput{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Method:      req.Method,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}
