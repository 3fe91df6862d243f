package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/campus-orders/internal/adapter/auth"
	"github.com/rl1809/campus-orders/internal/adapter/notify"
	"github.com/rl1809/campus-orders/internal/adapter/storage"
	"github.com/rl1809/campus-orders/internal/core/domain"
	"github.com/rl1809/campus-orders/internal/core/service"
	"github.com/rl1809/campus-orders/internal/port"
)

var (
	student = domain.Principal{ID: "student-1", Email: "student@uni.edu"}
	admin   = domain.Principal{ID: "admin-1", Email: "treasurer@uni.edu"}
)

const storedProofURL = "/uploads/proof.png"

type fakeImageStore struct {
	mu      sync.Mutex
	data    []byte
	uploads int
}

func (f *fakeImageStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	f.data = data
	return storedProofURL, nil
}

func (f *fakeImageStore) Open(ctx context.Context, url string) (io.ReadSeekCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url != storedProofURL || f.data == nil {
		return nil, port.ErrNotFound
	}
	return nopCloser{bytes.NewReader(f.data)}, nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	t          *testing.T
	store      *storage.MemoryAdapter
	dispatcher *notify.Dispatcher
	images     *fakeImageStore
	authn      *auth.JWTAuthenticator
	handler    http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryAdapter()
	policy := service.NewAdminPolicy([]string{admin.Email})
	dispatcher := notify.NewDispatcher(store, 100, notify.NewLogChannel(slog.New(slog.NewTextHandler(io.Discard, nil))))
	dispatcher.Start(1)
	t.Cleanup(dispatcher.Close)

	carts := service.NewCartService(store, store, service.NewKeyedMutex())
	orders := service.NewOrderService(store, store, carts, store, service.DuesConfig{Amount: 5000, Title: "Membership dues"})
	services := Services{
		Catalog:       service.NewCatalogService(store, policy),
		Carts:         carts,
		Orders:        orders,
		Verification:  service.NewVerificationService(orders, store, dispatcher, policy),
		Notifications: service.NewNotificationService(store),
	}

	registry := prometheus.NewRegistry()
	images := &fakeImageStore{}
	authn := auth.NewJWTAuthenticator("test-secret")
	h := NewHTTPHandler(services, images, NewMetrics(registry, registry), map[string]Pinger{"store": store}, 5*time.Second)

	return &testServer{
		t:          t,
		store:      store,
		dispatcher: dispatcher,
		images:     images,
		authn:      authn,
		handler:    h.Routes(authn.Middleware),
	}
}

func (s *testServer) seed(id string, price int64, stock int) {
	s.t.Helper()
	require.NoError(s.t, s.store.CreateProduct(context.Background(), domain.Product{
		ID: id, Title: id, Price: price, Stock: stock, IsAvailable: true,
	}))
}

func (s *testServer) do(as *domain.Principal, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != nil {
		token, err := s.authn.Sign(*as, time.Minute)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)
	s.seed("shirt", 500, 10)

	rec := s.do(&student, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "shirt", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decodeBody[CartResponse](t, rec)
	assert.Equal(t, int64(1000), cart.Total)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/checkout", nil, idempotencyHeader, "k1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeBody[PaymentResponse](t, rec)
	assert.Equal(t, int64(1000), payment.Amount)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.True(t, strings.HasPrefix(payment.Reference, "PAY-"))
	assert.Equal(t, []string{"shirt"}, payment.ProductIDs)
	require.Len(t, payment.Items, 1)

	rec = s.do(&student, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[CartResponse](t, rec).Items)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/checkout", nil, idempotencyHeader, "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(&student, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]PaymentResponse](t, rec), 1)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.seed("mug", 250, 1)

	other := domain.Principal{ID: "student-2"}
	rec := s.do(&student, http.MethodPost, "/api/v1/orders/dues", DuesRequest{Method: domain.PaymentMethodCash})
	assert.Contains(t, rec.Body.String(), `"product_ids":[]`)
	dues := decodeBody[PaymentResponse](t, rec)

	tests := []struct {
		name     string
		as       *domain.Principal
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"no token", nil, http.MethodGet, "/api/v1/cart", nil, http.StatusUnauthorized, "unauthorized"},
		{"empty cart", &student, http.MethodPost, "/api/v1/orders/checkout", nil, http.StatusBadRequest, "validation_error"},
		{"bad quantity", &student, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "mug", Quantity: 0}, http.StatusBadRequest, "validation_error"},
		{"over stock", &student, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "mug", Quantity: 2}, http.StatusConflict, "conflict"},
		{"unknown product", &student, http.MethodGet, "/api/v1/products/nope", nil, http.StatusNotFound, "not_found"},
		{"foreign payment", &other, http.MethodGet, "/api/v1/orders/" + dues.ID, nil, http.StatusForbidden, "forbidden"},
		{"student on admin route", &student, http.MethodGet, "/api/v1/admin/orders", nil, http.StatusForbidden, "forbidden"},
		{"bad status filter", &admin, http.MethodGet, "/api/v1/admin/orders?status=lost", nil, http.StatusBadRequest, "validation_error"},
		{"stock without expected", &admin, http.MethodPut, "/api/v1/admin/products/mug/stock", map[string]int{"stock": 3}, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.as, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("{not json"))
	token, _ := s.authn.Sign(student, time.Minute)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rec).Code)
}

func TestProofUpload(t *testing.T) {
	s := newTestServer(t)
	p := decodeBody[PaymentResponse](t, s.do(&student, http.MethodPost, "/api/v1/orders/dues", DuesRequest{Method: domain.PaymentMethodBankTransfer}))

	rec := s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{ImageData: "%%%"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{
		ImageData:   base64.StdEncoding.EncodeToString([]byte("png")),
		ContentType: "image/png",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[PaymentResponse](t, rec)
	assert.Equal(t, domain.PaymentStatusSubmitted, got.Status)
	assert.Equal(t, storedProofURL, got.ProofImage)
	assert.Equal(t, "png", string(s.images.data))
}

func TestProofUpload_RejectedBeforeStoring(t *testing.T) {
	s := newTestServer(t)
	p := decodeBody[PaymentResponse](t, s.do(&student, http.MethodPost, "/api/v1/orders/dues", DuesRequest{Method: domain.PaymentMethodBankTransfer}))
	upload := ProofRequest{ImageData: base64.StdEncoding.EncodeToString([]byte("png")), ContentType: "image/png"}

	other := domain.Principal{ID: "student-2"}
	rec := s.do(&other, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", upload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/missing/proof", upload)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{Image: "https://img.test/a.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", upload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Zero(t, s.images.uploads, "rejected submissions must not store an image")
}

func TestGetProof(t *testing.T) {
	s := newTestServer(t)
	p := decodeBody[PaymentResponse](t, s.do(&student, http.MethodPost, "/api/v1/orders/dues", DuesRequest{Method: domain.PaymentMethodBankTransfer}))

	rec := s.do(&student, http.MethodGet, "/api/v1/orders/"+p.ID+"/proof", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{
		ImageData:   base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		ContentType: "image/png",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(nil, http.MethodGet, "/api/v1/orders/"+p.ID+"/proof", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := domain.Principal{ID: "student-2"}
	rec = s.do(&other, http.MethodGet, "/api/v1/orders/"+p.ID+"/proof", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(&other, http.MethodGet, "/api/v1/admin/orders/"+p.ID+"/proof", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, path := range []string{"/api/v1/orders/" + p.ID + "/proof", "/api/v1/admin/orders/" + p.ID + "/proof"} {
		as := &student
		if strings.Contains(path, "/admin/") {
			as = &admin
		}
		rec = s.do(as, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "png-bytes", rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	}
}

func TestGetProof_RedirectsToHostedImage(t *testing.T) {
	s := newTestServer(t)
	p := decodeBody[PaymentResponse](t, s.do(&student, http.MethodPost, "/api/v1/orders/dues", DuesRequest{Method: domain.PaymentMethodBankTransfer}))
	s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{Image: "https://img.test/a.png"})

	rec := s.do(&admin, http.MethodGet, "/api/v1/admin/orders/"+p.ID+"/proof", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://img.test/a.png", rec.Header().Get("Location"))
}

func TestAdminVerifyAndNotify(t *testing.T) {
	s := newTestServer(t)
	s.seed("hoodie", 3000, 2)

	s.do(&student, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "hoodie", Quantity: 1})
	p := decodeBody[PaymentResponse](t, s.do(&student, http.MethodPost, "/api/v1/orders/checkout", nil))
	rec := s.do(&student, http.MethodPost, "/api/v1/orders/"+p.ID+"/proof", ProofRequest{Image: "https://img.test/a.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(&admin, http.MethodGet, "/api/v1/admin/orders/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[PaymentDetailResponse](t, rec)
	require.Len(t, detail.Products, 1)
	assert.Equal(t, "hoodie", detail.Products[0].ID)

	rec = s.do(&admin, http.MethodPut, "/api/v1/admin/orders/"+p.ID, VerifyRequest{Decision: domain.DecisionApprove, Notes: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PaymentStatusConfirmed, decodeBody[PaymentResponse](t, rec).Status)

	rec = s.do(&admin, http.MethodPut, "/api/v1/admin/orders/"+p.ID, VerifyRequest{Decision: domain.DecisionReject})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(&admin, http.MethodPost, "/api/v1/admin/orders/"+p.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decodeBody[PaymentResponse](t, rec).ReceiptCode, "RCP-"))

	// drain the dispatcher so both notifications are stored
	s.dispatcher.Close()

	rec = s.do(&student, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]NotificationResponse](t, rec)
	require.Len(t, list, 2)

	rec = s.do(&student, http.MethodPut, "/api/v1/notifications/"+list[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(&student, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	assert.Len(t, decodeBody[[]NotificationResponse](t, rec), 1)
}

func TestAdminCatalog(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(&admin, http.MethodPost, "/api/v1/admin/products", ProductRequest{Title: "Scarf", Price: 1200, Stock: 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	scarf := decodeBody[ProductResponse](t, rec)
	assert.False(t, scarf.IsAvailable)

	rec = s.do(&student, http.MethodGet, "/api/v1/products", nil)
	assert.Empty(t, decodeBody[[]ProductResponse](t, rec), "students only see available products")
	rec = s.do(&admin, http.MethodGet, "/api/v1/products", nil)
	assert.Len(t, decodeBody[[]ProductResponse](t, rec), 1)

	rec = s.do(&admin, http.MethodPut, "/api/v1/admin/products/"+scarf.ID, ProductRequest{Title: "Scarf", Price: 1200, IsAvailable: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	expected := 4
	rec = s.do(&admin, http.MethodPut, "/api/v1/admin/products/"+scarf.ID+"/stock", StockRequest{Expected: &expected, Stock: 9})
	assert.Equal(t, http.StatusConflict, rec.Code)

	expected = 5
	rec = s.do(&admin, http.MethodPut, "/api/v1/admin/products/"+scarf.ID+"/stock", StockRequest{Expected: &expected, Stock: 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 9, decodeBody[ProductResponse](t, rec).Stock)

	rec = s.do(&admin, http.MethodPost, "/api/v1/admin/charges", ChargeRequest{UserID: student.ID, Title: "Trip", Amount: 1500})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PaymentKindCharge, decodeBody[PaymentResponse](t, rec).Kind)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewHTTPHandler(Services{}, nil, nil, map[string]Pinger{"store": fakePinger{err: errors.New("down")}}, time.Second)
	rec = httptest.NewRecorder()
	h.Routes(s.authn.Middleware).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"unavailable"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed("pen", 10, 1)

	s.do(&student, http.MethodGet, "/api/v1/products/pen", nil)

	rec := s.do(nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `campus_orders_http_requests_total{method="GET",route="/api/v1/products/{id}",status="200"} 1`)
}
