package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/rrajo-portfolio/orders-service/internal/apperr"
)

// Repository persists order aggregates. Update performs a compare-and-swap
// on the version column: a write succeeds only if the stored version still
// equals the version the caller read, otherwise it fails with
// apperr.ErrConflict.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, page, size int, status Status) ([]Order, int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ExistsByUser(ctx context.Context, userID uuid.UUID) (bool, error)
	CountByStatus(ctx context.Context, status Status) (int64, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, user_id, user_full_name, user_email, status, currency, total_amount, notes, created_at, updated_at, version`

func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback create transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 0

	queryOrder := `
		INSERT INTO orders (id, user_id, user_full_name, user_email, status, currency, total_amount, notes, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.UserFullName,
		o.UserEmail,
		string(o.Status),
		o.Currency,
		o.TotalAmount,
		o.Notes,
		o.CreatedAt,
		o.UpdatedAt,
		o.Version,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	if err = r.insertItems(ctx, tx, o); err != nil {
		return err
	}
	return nil
}

func (r *postgresRepository) insertItems(ctx context.Context, tx pgx.Tx, o *Order) error {
	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, title, quantity, price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range o.Items {
		item := &o.Items[i]
		if item.ID == uuid.Nil {
			itemID, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate order item id: %w", err)
			}
			item.ID = itemID
		}
		_, err := tx.Exec(ctx, queryItem,
			item.ID,
			o.ID,
			item.ProductID,
			item.Title,
			item.Quantity,
			item.Price,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.UserFullName,
		&o.UserEmail,
		&o.Status,
		&o.Currency,
		&o.TotalAmount,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repository: order %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return &o, nil
}

// Update writes the whole aggregate back. The version predicate is the
// concurrency control: zero rows affected on an existing order means a
// concurrent write won the race.
func (r *postgresRepository) Update(ctx context.Context, o *Order) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback update transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	updatedAt := time.Now().UTC()
	queryOrder := `
		UPDATE orders
		SET status = $1, total_amount = $2, notes = $3, updated_at = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`
	cmdTag, err := tx.Exec(ctx, queryOrder,
		string(o.Status),
		o.TotalAmount,
		o.Notes,
		updatedAt,
		o.ID,
		o.Version,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("repository: failed to check order %s existence: %w", o.ID, err)
		}
		if !exists {
			return fmt.Errorf("repository: order %s: %w", o.ID, apperr.ErrNotFound)
		}
		log.Warn().Stringer("order_id", o.ID).Int64("version", o.Version).Msg("repository: optimistic version clash on update")
		return fmt.Errorf("repository: stale version %d for order %s: %w", o.Version, o.ID, apperr.ErrConflict)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return fmt.Errorf("repository: failed to delete order items for order %s: %w", o.ID, err)
	}
	if err = r.insertItems(ctx, tx, o); err != nil {
		return err
	}

	o.Version++
	o.UpdatedAt = updatedAt
	return nil
}

func (r *postgresRepository) List(ctx context.Context, page, size int, status Status) ([]Order, int64, error) {
	countQuery := `SELECT COUNT(*) FROM orders WHERE ($1 = '' OR status = $1)`
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, string(status), size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders, err := r.collectOrders(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *postgresRepository) ExistsByUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check orders for user %s: %w", userID, err)
	}
	return exists, nil
}

func (r *postgresRepository) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to count orders by status %s: %w", status, err)
	}
	return count, nil
}

func (r *postgresRepository) collectOrders(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.UserFullName,
			&o.UserEmail,
			&o.Status,
			&o.Currency,
			&o.TotalAmount,
			&o.Notes,
			&o.CreatedAt,
			&o.UpdatedAt,
			&o.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = []Item{}
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	items, err := r.loadItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for orderID, orderItems := range items {
		if o, ok := ordersMap[orderID]; ok {
			o.Items = orderItems
		}
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	query := `
		SELECT id, order_id, product_id, title, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]Item)
	for rows.Next() {
		var item Item
		var orderID uuid.UUID
		err := rows.Scan(
			&item.ID,
			&orderID,
			&item.ProductID,
			&item.Title,
			&item.Quantity,
			&item.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}
	return items, nil
}
