package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
	"github.com/rrajo-portfolio/orders-service/internal/auth"
	"github.com/rrajo-portfolio/orders-service/internal/client"
)

const defaultPageSize = 20

// CatalogGateway is the authoritative source of product data.
type CatalogGateway interface {
	FetchProduct(ctx context.Context, productID uuid.UUID) (client.Product, error)
}

// UsersGateway resolves the order owner's profile.
type UsersGateway interface {
	FetchUser(ctx context.Context, userID uuid.UUID) (client.User, error)
}

// EventPublisher emits the order lifecycle record to the partitioned event
// stream. Best-effort: failures never roll back the owning mutation.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, o Order) error
}

// NotificationPublisher emits the routed status notification. Best-effort.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, o Order) error
}

// Metrics receives order counters. Informational only.
type Metrics interface {
	TrackNewOrder(o Order, newCustomer bool)
	IncrementStatus(status Status)
}

type CreateItemRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderRequest struct {
	UserID   uuid.UUID
	Currency string
	Notes    string
	Items    []CreateItemRequest
}

type UpdateOrderRequest struct {
	Notes string
	Items []CreateItemRequest
}

// Service orchestrates order placement: cross-service validation,
// authoritative pricing, persistence and best-effort notifications.
type Service interface {
	Create(ctx context.Context, req CreateOrderRequest, caller auth.Identity) (*Order, error)
	List(ctx context.Context, page, size int, status Status, caller auth.Identity) (*Page, error)
	Get(ctx context.Context, id uuid.UUID, caller auth.Identity) (*Order, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateOrderRequest, caller auth.Identity) (*Order, error)
	Cancel(ctx context.Context, id uuid.UUID, caller auth.Identity) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status, caller auth.Identity) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, caller auth.Identity) ([]Order, error)
	HandlePaymentResult(ctx context.Context, orderID uuid.UUID, success bool) error
}

type service struct {
	repo          Repository
	catalog       CatalogGateway
	users         UsersGateway
	events        EventPublisher
	notifications NotificationPublisher
	metrics       Metrics
}

func NewService(
	repo Repository,
	catalog CatalogGateway,
	users UsersGateway,
	events EventPublisher,
	notifications NotificationPublisher,
	metrics Metrics,
) Service {
	return &service{
		repo:          repo,
		catalog:       catalog,
		users:         users,
		events:        events,
		notifications: notifications,
		metrics:       metrics,
	}
}

// Create validates the owner and every line item against the upstream
// services, prices the order from fetched catalog data, and persists the
// aggregate at version 0. Any validation failure aborts before persistence.
func (s *service) Create(ctx context.Context, req CreateOrderRequest, caller auth.Identity) (*Order, error) {
	effectiveUserID := req.UserID
	if !caller.IsPrivileged() {
		if caller.IsAnonymous() {
			return nil, fmt.Errorf("service: unable to determine current user: %w", apperr.ErrAccessDenied)
		}
		effectiveUserID = caller.UserID
	}

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	hasOrders, err := s.repo.ExistsByUser(ctx, effectiveUserID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to check prior orders: %w", err)
	}
	newCustomer := !hasOrders

	user, err := s.users.FetchUser(ctx, effectiveUserID)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", effectiveUserID).Msg("service: failed to resolve order owner")
		return nil, err
	}

	items, total, err := s.priceItems(ctx, req.Items, req.Currency, true)
	if err != nil {
		return nil, err
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	o := &Order{
		ID:           orderID,
		UserID:       effectiveUserID,
		UserFullName: user.FullName,
		UserEmail:    user.Email,
		Status:       StatusPending,
		Currency:     req.Currency,
		TotalAmount:  total,
		Notes:        req.Notes,
		Items:        items,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("user_id", o.UserID).Str("total", o.TotalAmount.String()).Msg("service: order created")

	s.publishNotification(ctx, o)
	s.publishEvent(ctx, o)
	s.metrics.TrackNewOrder(o.Snapshot(), newCustomer)

	return o, nil
}

// List returns a paginated, creation-descending view for privileged
// callers. Unprivileged callers get only their own orders as a single
// unpaginated page.
func (s *service) List(ctx context.Context, page, size int, status Status, caller auth.Identity) (*Page, error) {
	if !caller.IsPrivileged() {
		if caller.IsAnonymous() {
			return nil, fmt.Errorf("service: anonymous user cannot list orders: %w", apperr.ErrAccessDenied)
		}
		orders, err := s.repo.ListByUser(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
		}
		if status != "" {
			filtered := make([]Order, 0, len(orders))
			for _, o := range orders {
				if o.Status == status {
					filtered = append(filtered, o)
				}
			}
			orders = filtered
		}
		totalPages := 0
		if len(orders) > 0 {
			totalPages = 1
		}
		return &Page{
			Content:       orders,
			Page:          0,
			Size:          len(orders),
			TotalElements: int64(len(orders)),
			TotalPages:    totalPages,
		}, nil
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}

	orders, total, err := s.repo.List(ctx, page, size, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &Page{
		Content:       orders,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, caller auth.Identity) (*Order, error) {
	o, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsPrivileged() && caller.UserID != o.UserID {
		return nil, fmt.Errorf("service: user is not allowed to access order %s: %w", id, apperr.ErrAccessDenied)
	}
	return o, nil
}

// Update re-validates every item against the catalog, recomputes the
// total, and persists with a version check.
func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateOrderRequest, caller auth.Identity) (*Order, error) {
	if !caller.IsPrivileged() {
		return nil, fmt.Errorf("service: only administrators can update orders: %w", apperr.ErrAccessDenied)
	}

	o, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Mutable() {
		return nil, fmt.Errorf("service: cannot update a cancelled order: %w", apperr.ErrConflict)
	}

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	items, total, err := s.priceItems(ctx, req.Items, o.Currency, false)
	if err != nil {
		return nil, err
	}

	o.Notes = req.Notes
	o.Items = items
	o.TotalAmount = total

	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("service: failed to update order %s: %w", id, err)
	}

	log.Info().Stringer("order_id", o.ID).Int64("version", o.Version).Msg("service: order updated")
	s.publishNotification(ctx, o)
	return o, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, caller auth.Identity) error {
	if !caller.IsPrivileged() {
		return fmt.Errorf("service: only administrators can cancel orders: %w", apperr.ErrAccessDenied)
	}

	o, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	o.Status = StatusCancelled
	if err := s.repo.Update(ctx, o); err != nil {
		return fmt.Errorf("service: failed to cancel order %s: %w", id, err)
	}

	log.Info().Stringer("order_id", o.ID).Msg("service: order cancelled")
	s.publishNotification(ctx, o)
	s.metrics.IncrementStatus(StatusCancelled)
	return nil
}

// SetStatus applies the requested status verbatim. Transition legality is
// not enforced here; only the cancelled-order immutability rule on the
// update path guards the tombstone.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status Status, caller auth.Identity) (*Order, error) {
	if !caller.IsPrivileged() {
		return nil, fmt.Errorf("service: only administrators can update order status: %w", apperr.ErrAccessDenied)
	}

	o, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	o.Status = status
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("service: failed to set status for order %s: %w", id, err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("status", status).Msg("service: order status updated")
	s.publishNotification(ctx, o)
	s.metrics.IncrementStatus(status)
	return o, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, caller auth.Identity) ([]Order, error) {
	if !caller.IsPrivileged() && caller.UserID != userID {
		return nil, fmt.Errorf("service: user is not allowed to access these orders: %w", apperr.ErrAccessDenied)
	}

	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

// HandlePaymentResult closes the payment saga: CONFIRMED on success,
// CANCELLED on failure. The message source is the trust boundary, so no
// caller authorization applies. The transition is applied on every
// delivery; CONFIRMED and CANCELLED are absorbing states, which makes
// redelivery harmless today.
func (s *service) HandlePaymentResult(ctx context.Context, orderID uuid.UUID, success bool) error {
	o, err := s.findByID(ctx, orderID)
	if err != nil {
		return err
	}

	if success {
		o.Status = StatusConfirmed
		log.Info().Stringer("order_id", orderID).Msg("service: order confirmed via payment saga")
	} else {
		o.Status = StatusCancelled
		log.Info().Stringer("order_id", orderID).Msg("service: order cancelled via payment saga")
	}

	if err := s.repo.Update(ctx, o); err != nil {
		return fmt.Errorf("service: failed to apply payment result to order %s: %w", orderID, err)
	}

	s.publishNotification(ctx, o)
	return nil
}

func (s *service) findByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found")
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to fetch order %s: %w", id, err)
	}
	return o, nil
}

// priceItems fetches authoritative product data for every requested line
// item and accumulates the total strictly from fetched unit prices.
func (s *service) priceItems(ctx context.Context, reqItems []CreateItemRequest, currency string, enforceCurrency bool) ([]Item, decimal.Decimal, error) {
	items := make([]Item, 0, len(reqItems))
	total := decimal.Zero

	for _, reqItem := range reqItems {
		product, err := s.catalog.FetchProduct(ctx, reqItem.ProductID)
		if err != nil {
			log.Warn().Err(err).Stringer("product_id", reqItem.ProductID).Msg("service: failed to fetch product")
			return nil, decimal.Zero, err
		}
		if enforceCurrency && !strings.EqualFold(product.Currency, currency) {
			return nil, decimal.Zero, fmt.Errorf("service: product %s currency mismatch: expected %s, got %s: %w",
				reqItem.ProductID, currency, product.Currency, apperr.ErrConflict)
		}

		items = append(items, Item{
			ProductID: reqItem.ProductID,
			Title:     product.Name,
			Quantity:  reqItem.Quantity,
			Price:     product.Price,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(reqItem.Quantity))))
	}

	return items, total, nil
}

func (s *service) publishNotification(ctx context.Context, o *Order) {
	if err := s.notifications.PublishNotification(ctx, o.Snapshot()); err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: failed to publish order notification")
	}
}

func (s *service) publishEvent(ctx context.Context, o *Order) {
	if err := s.events.PublishOrderEvent(ctx, o.Snapshot()); err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: failed to publish order event")
	}
}

func validateItems(items []CreateItemRequest) error {
	if len(items) == 0 {
		return errors.New("service: order must contain at least one item")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return errors.New("service: product id in order item cannot be nil")
		}
		if item.Quantity < 1 {
			return fmt.Errorf("service: order item quantity for product %s must be at least 1", item.ProductID)
		}
	}
	return nil
}
