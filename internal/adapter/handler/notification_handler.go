package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifications.List(r.Context(), principal(r).ID, r.URL.Query().Get("unread") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponses(list))
}

func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), principal(r).ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
