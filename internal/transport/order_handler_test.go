package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/auth"
	"github.com/rrajo-portfolio/orders-service/internal/order"
	"github.com/rrajo-portfolio/orders-service/internal/transport"
)

type stubService struct {
	order.Service
	createFunc    func(ctx context.Context, req order.CreateOrderRequest, caller auth.Identity) (*order.Order, error)
	getFunc       func(ctx context.Context, id uuid.UUID, caller auth.Identity) (*order.Order, error)
	cancelFunc    func(ctx context.Context, id uuid.UUID, caller auth.Identity) error
	setStatusFunc func(ctx context.Context, id uuid.UUID, status order.Status, caller auth.Identity) (*order.Order, error)
	listFunc      func(ctx context.Context, page, size int, status order.Status, caller auth.Identity) (*order.Page, error)
}

func (s *stubService) Create(ctx context.Context, req order.CreateOrderRequest, caller auth.Identity) (*order.Order, error) {
	return s.createFunc(ctx, req, caller)
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID, caller auth.Identity) (*order.Order, error) {
	return s.getFunc(ctx, id, caller)
}

func (s *stubService) Cancel(ctx context.Context, id uuid.UUID, caller auth.Identity) error {
	return s.cancelFunc(ctx, id, caller)
}

func (s *stubService) SetStatus(ctx context.Context, id uuid.UUID, status order.Status, caller auth.Identity) (*order.Order, error) {
	return s.setStatusFunc(ctx, id, status, caller)
}

func (s *stubService) List(ctx context.Context, page, size int, status order.Status, caller auth.Identity) (*order.Page, error) {
	return s.listFunc(ctx, page, size, status, caller)
}

func newRouter(service order.Service) *chi.Mux {
	router := chi.NewRouter()
	transport.NewOrderHandler(service).RegisterRoutes(router)
	return router
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	ownerID := "44444444-4444-4444-8444-444444444444"

	t.Run("valid_payload_returns_201", func(t *testing.T) {
		var gotReq order.CreateOrderRequest
		var gotCaller auth.Identity
		service := &stubService{
			createFunc: func(ctx context.Context, req order.CreateOrderRequest, caller auth.Identity) (*order.Order, error) {
				gotReq = req
				gotCaller = caller
				return &order.Order{ID: uuid.FromStringOrNil("33333333-3333-4333-8333-333333333333"), Status: order.StatusPending, TotalAmount: decimal.RequireFromString("50.00")}, nil
			},
		}

		body := fmt.Sprintf(`{"user_id":%q,"currency":"EUR","items":[{"product_id":"11111111-1111-4111-8111-111111111111","quantity":2}]}`, ownerID)
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
		req.Header.Set("X-User-Id", ownerID)
		req.Header.Set("X-User-Roles", "user, orders-admin")
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "EUR", gotReq.Currency)
		require.Len(t, gotReq.Items, 1)
		assert.Equal(t, 2, gotReq.Items[0].Quantity)
		assert.Equal(t, ownerID, gotCaller.UserID.String())
		assert.Equal(t, []string{"user", "orders-admin"}, gotCaller.Roles)
	})

	t.Run("missing_items_fails_validation", func(t *testing.T) {
		service := &stubService{
			createFunc: func(ctx context.Context, req order.CreateOrderRequest, caller auth.Identity) (*order.Order, error) {
				t.Fatal("service must not be called on validation failure")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"currency":"EUR","items":[]}`))
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp transport.ValidationErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Details)
	})

	t.Run("unknown_fields_are_rejected", func(t *testing.T) {
		service := &stubService{
			createFunc: func(ctx context.Context, req order.CreateOrderRequest, caller auth.Identity) (*order.Order, error) {
				t.Fatal("service must not be called on decode failure")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"currency":"EUR","total_amount":"99.99","items":[{"product_id":"11111111-1111-4111-8111-111111111111","quantity":1}]}`))
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	orderID := "33333333-3333-4333-8333-333333333333"

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "not_found", err: apperr.ErrNotFound, wantCode: http.StatusNotFound},
		{name: "remote_not_found", err: apperr.ErrRemoteNotFound, wantCode: http.StatusNotFound},
		{name: "conflict", err: apperr.ErrConflict, wantCode: http.StatusConflict},
		{name: "access_denied", err: apperr.ErrAccessDenied, wantCode: http.StatusForbidden},
		{name: "unavailable", err: apperr.ErrUnavailable, wantCode: http.StatusServiceUnavailable},
		{name: "unclassified", err: fmt.Errorf("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubService{
				getFunc: func(ctx context.Context, id uuid.UUID, caller auth.Identity) (*order.Order, error) {
					return nil, fmt.Errorf("service: %w", tt.err)
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID, nil)
			rec := httptest.NewRecorder()

			newRouter(service).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	t.Run("success_returns_order", func(t *testing.T) {
		service := &stubService{
			getFunc: func(ctx context.Context, id uuid.UUID, caller auth.Identity) (*order.Order, error) {
				return &order.Order{ID: id, Status: order.StatusConfirmed, TotalAmount: decimal.RequireFromString("50.00")}, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID, nil)
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp order.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, orderID, resp.ID.String())
		assert.Equal(t, order.StatusConfirmed, resp.Status)
	})

	t.Run("malformed_id_is_bad_request", func(t *testing.T) {
		service := &stubService{
			getFunc: func(ctx context.Context, id uuid.UUID, caller auth.Identity) (*order.Order, error) {
				t.Fatal("service must not be called with a malformed id")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_CancelOrder(t *testing.T) {
	orderID := "33333333-3333-4333-8333-333333333333"

	service := &stubService{
		cancelFunc: func(ctx context.Context, id uuid.UUID, caller auth.Identity) error {
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/orders/"+orderID, nil)
	rec := httptest.NewRecorder()

	newRouter(service).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOrderHandler_UpdateOrderStatus(t *testing.T) {
	orderID := "33333333-3333-4333-8333-333333333333"

	t.Run("valid_status_is_forwarded", func(t *testing.T) {
		var gotStatus order.Status
		service := &stubService{
			setStatusFunc: func(ctx context.Context, id uuid.UUID, status order.Status, caller auth.Identity) (*order.Order, error) {
				gotStatus = status
				return &order.Order{ID: id, Status: status}, nil
			},
		}

		req := httptest.NewRequest(http.MethodPut, "/orders/"+orderID+"/status", strings.NewReader(`{"status":"SHIPPED"}`))
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, order.StatusShipped, gotStatus)
	})

	t.Run("unknown_status_is_bad_request", func(t *testing.T) {
		service := &stubService{
			setStatusFunc: func(ctx context.Context, id uuid.UUID, status order.Status, caller auth.Identity) (*order.Order, error) {
				t.Fatal("service must not be called with an unknown status")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodPut, "/orders/"+orderID+"/status", strings.NewReader(`{"status":"PAID"}`))
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_ListOrders(t *testing.T) {
	t.Run("pagination_and_filter_are_forwarded", func(t *testing.T) {
		var gotPage, gotSize int
		var gotStatus order.Status
		service := &stubService{
			listFunc: func(ctx context.Context, page, size int, status order.Status, caller auth.Identity) (*order.Page, error) {
				gotPage, gotSize, gotStatus = page, size, status
				return &order.Page{Content: []order.Order{}, Page: page, Size: size}, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/orders?page=2&size=10&status=CONFIRMED", nil)
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, gotPage)
		assert.Equal(t, 10, gotSize)
		assert.Equal(t, order.StatusConfirmed, gotStatus)
	})

	t.Run("invalid_status_filter_is_bad_request", func(t *testing.T) {
		service := &stubService{
			listFunc: func(ctx context.Context, page, size int, status order.Status, caller auth.Identity) (*order.Page, error) {
				t.Fatal("service must not be called with an invalid filter")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/orders?status=nope", nil)
		rec := httptest.NewRecorder()

		newRouter(service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
