// Package transport exposes the order operations over HTTP. It decodes and
// validates payloads, resolves the caller identity, and maps the service
// error classes to status codes; all business rules live in the service.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rrajo-portfolio/orders-service/internal/order"
)

type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CreateOrderRequest struct {
	UserID   string                   `json:"user_id" validate:"omitempty,uuid"`
	Currency string                   `json:"currency" validate:"required,len=3"`
	Notes    string                   `json:"notes" validate:"max=300"`
	Items    []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderRequest struct {
	Notes string                   `json:"notes" validate:"max=300"`
	Items []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}", h.handleUpdateOrder)
	router.Delete("/orders/{id}", h.handleCancelOrder)
	router.Put("/orders/{id}/status", h.handleUpdateOrderStatus)
	router.Get("/users/{userId}/orders", h.handleListOrdersByUser)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	userID := uuid.Nil
	if requestPayload.UserID != "" {
		userID, _ = uuid.FromString(requestPayload.UserID)
	}

	req := order.CreateOrderRequest{
		UserID:   userID,
		Currency: requestPayload.Currency,
		Notes:    requestPayload.Notes,
		Items:    toItemRequests(requestPayload.Items),
	}

	created, err := h.service.Create(r.Context(), req, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 0)

	status, ok := h.statusFilter(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), page, size, status, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), orderID, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateOrderRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	req := order.UpdateOrderRequest{
		Notes: requestPayload.Notes,
		Items: toItemRequests(requestPayload.Items),
	}

	updated, err := h.service.Update(r.Context(), orderID, req, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update order")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), orderID, identityFromRequest(r)); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to cancel order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to cancel order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var requestPayload OrderStatusRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	status, err := order.ParseStatus(requestPayload.Status)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid status value")
		return
	}

	updated, err := h.service.SetStatus(r.Context(), orderID, status, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleListOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	orders, err := h.service.ListByUser(r.Context(), userID, identityFromRequest(r))
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to list user orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list user orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	if err := h.validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

func (h *OrderHandler) statusFilter(w http.ResponseWriter, r *http.Request) (order.Status, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", true
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid status filter")
		return "", false
	}
	return status, true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.FromString(raw)
	if err != nil {
		log.Warn().Err(err).Str(param, raw).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, param string, fallback int) int {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func toItemRequests(items []CreateOrderItemRequest) []order.CreateItemRequest {
	result := make([]order.CreateItemRequest, 0, len(items))
	for _, item := range items {
		productID, _ := uuid.FromString(item.ProductID)
		result = append(result, order.CreateItemRequest{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}
	return result
}
