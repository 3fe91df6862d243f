package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rl1809/campus-orders/internal/adapter/auth"
	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/core/service"
	"github.com/rl1809/campus-orders/internal/port"
)

const maxBodyBytes = 8 << 20

// Pinger is any dependency whose reachability gates /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Services struct {
	Catalog       *service.CatalogService
	Carts         *service.CartService
	Orders        *service.OrderService
	Verification  *service.VerificationService
	Notifications *service.NotificationService
}

type HTTPHandler struct {
	catalog       *service.CatalogService
	carts         *service.CartService
	orders        *service.OrderService
	verification  *service.VerificationService
	notifications *service.NotificationService

	images  port.ImageStore
	metrics *Metrics
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHTTPHandler builds the REST surface. images and metrics may be nil.
func NewHTTPHandler(s Services, images port.ImageStore, metrics *Metrics, checks map[string]Pinger, timeout time.Duration) *HTTPHandler {
	return &HTTPHandler{
		catalog:       s.Catalog,
		carts:         s.Carts,
		orders:        s.Orders,
		verification:  s.Verification,
		notifications: s.Notifications,
		images:        images,
		metrics:       metrics,
		checks:        checks,
		timeout:       timeout,
	}
}

// Routes mounts every endpoint. authn must put a domain.Principal on the
// request context, see auth.WithPrincipal.
func (h *HTTPHandler) Routes(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn)

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productId}", h.UpdateItem)
			r.Delete("/items/{productId}", h.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/checkout", h.Checkout)
			r.Post("/dues", h.CreateDues)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/proof", h.SubmitProof)
			r.Get("/{id}/proof", h.GetProof)
		})

		r.Get("/notifications", h.ListNotifications)
		r.Put("/notifications/{id}/read", h.MarkNotificationRead)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", h.AdminListOrders)
			r.Get("/orders/{id}", h.AdminGetOrder)
			r.Get("/orders/{id}/proof", h.AdminGetProof)
			r.Put("/orders/{id}", h.VerifyOrder)
			r.Post("/orders/{id}/complete", h.CompleteOrder)
			r.Put("/orders/{id}/notes", h.UpdateNotes)
			r.Post("/charges", h.CreateCharge)
			r.Post("/products", h.CreateProduct)
			r.Put("/products/{id}", h.UpdateProduct)
			r.Put("/products/{id}/stock", h.SetStock)
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, c := range h.checks {
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", name, "err", err)
			status[name] = "unavailable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func principal(r *http.Request) domain.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid request body", err.Error())
		return false
	}
	return true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeError maps a service error onto its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case service.IsValidationError(err):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
	case errors.Is(err, port.ErrUnsupportedImage):
		respondError(w, http.StatusBadRequest, "unsupported_image", err.Error(), "")
	case service.IsNotFoundError(err):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), "")
	case service.IsConflictError(err):
		respondError(w, http.StatusConflict, "conflict", err.Error(), "")
	case service.IsAuthorizationError(err):
		respondError(w, http.StatusForbidden, "forbidden", err.Error(), "")
	default:
		slog.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
	}
}
