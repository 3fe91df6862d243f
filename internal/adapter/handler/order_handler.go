package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/port"
)

const idempotencyHeader = "Idempotency-Key"

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	p, err := h.orders.CreateFromCart(r.Context(), principal(r).ID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *HTTPHandler) CreateDues(w http.ResponseWriter, r *http.Request) {
	var req DuesRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.orders.CreateDues(r.Context(), principal(r).ID, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	filter := domain.PaymentFilter{
		UserID: principal(r).ID,
		Status: domain.PaymentStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}

	payments, err := h.orders.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.orders.GetUserPayment(r.Context(), principal(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// SubmitProof accepts a hosted image URL, or inline base64 data that is
// uploaded to the image store once the payment is known to accept proof.
func (h *HTTPHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req ProofRequest
	if !decode(w, r, &req) {
		return
	}

	image := strings.TrimSpace(req.Image)
	if req.ImageData != "" {
		if h.images == nil {
			respondError(w, http.StatusBadRequest, "uploads_disabled", "image uploads are not enabled, send an image url", "")
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "image_data is not valid base64", err.Error())
			return
		}
		if _, err := h.orders.CheckProof(r.Context(), principal(r).ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		if image, err = h.images.Upload(r.Context(), data, req.ContentType); err != nil {
			writeError(w, r, err)
			return
		}
	}

	p, err := h.orders.SubmitProof(r.Context(), principal(r).ID, chi.URLParam(r, "id"), image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *HTTPHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	p, err := h.orders.GetUserPayment(r.Context(), principal(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.serveProof(w, r, p)
}

// serveProof streams an uploaded proof from the image store, or redirects to a
// proof hosted elsewhere. Callers have already checked access to p.
func (h *HTTPHandler) serveProof(w http.ResponseWriter, r *http.Request, p domain.Payment) {
	if p.ProofImage == "" {
		respondError(w, http.StatusNotFound, "not_found", "no proof has been submitted", "")
		return
	}

	if h.images != nil {
		f, err := h.images.Open(r.Context(), p.ProofImage)
		switch {
		case err == nil:
			defer f.Close()
			var modified time.Time
			if p.ProofSubmittedAt != nil {
				modified = *p.ProofSubmittedAt
			}
			w.Header().Set("Cache-Control", "private, no-store")
			http.ServeContent(w, r, path.Base(p.ProofImage), modified, f)
			return
		case !errors.Is(err, port.ErrNotFound):
			writeError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, p.ProofImage, http.StatusFound)
}
