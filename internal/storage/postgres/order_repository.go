package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const opTimeout = 5 * time.Second

// uniqueViolationCode — код ошибки PostgreSQL для нарушения уникальности.
const uniqueViolationCode = "23505"

// OrderRepository хранит заказы и их позиции в PostgreSQL.
type OrderRepository struct {
	db *sql.DB
}

var _ domain.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository создаёт репозиторий заказов поверх общего подключения.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

// Create сохраняет заказ вместе с позициями одной транзакцией.
func (r *OrderRepository) Create(order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, number, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.UserID, order.Number, order.Address, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	for _, item := range order.Items {
		if err = insertOrderItem(ctx, tx, order.ID, item); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order tx: %w", err)
	}
	return nil
}

// Get возвращает заказ по идентификатору. Чужой заказ отдаём как
// ErrOrderForbidden, несуществующий как ErrOrderNotFound.
func (r *OrderRepository) Get(orderID, userID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := r.fetchOrder(ctx, r.db, orderID, userID)
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.fetchItems(ctx, r.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// ListByUser возвращает заказы пользователя в порядке создания.
func (r *OrderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, user_id, number, address, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Number, &order.Address, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.fetchItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Update изменяет адрес доставки и делает upsert переданных позиций.
// Невалидные позиции отклоняются до открытия транзакции.
func (r *OrderRepository) Update(orderID, userID string, patch domain.OrderPatch) (_ domain.Order, err error) {
	if errs := patch.Validate(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin update order tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := r.fetchOrder(ctx, tx, orderID, userID)
	if err != nil {
		return domain.Order{}, err
	}

	if patch.Address != nil {
		order.Address = *patch.Address
	}
	order.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET address = $2, updated_at = $3
		WHERE id = $1
	`, orderID, order.Address, order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	for _, item := range patch.Items {
		// Конфликтная ветка ограничена патчуемым заказом: ID позиции,
		// занятый другим заказом, не должен перезаписывать чужую строку.
		var result sql.Result
		result, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, qty, price_minor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET product_id = EXCLUDED.product_id,
			    qty = EXCLUDED.qty,
			    price_minor = EXCLUDED.price_minor
			WHERE order_items.order_id = EXCLUDED.order_id
		`, item.ID, orderID, item.ProductID, item.Qty, item.PriceMinor, item.CreatedAt)
		if err != nil {
			return domain.Order{}, fmt.Errorf("upsert order item %s: %w", item.ID, err)
		}

		affected, affErr := result.RowsAffected()
		if affErr != nil {
			err = fmt.Errorf("upsert order item %s rows affected: %w", item.ID, affErr)
			return domain.Order{}, err
		}
		if affected == 0 {
			err = domain.ErrItemConflict
			return domain.Order{}, err
		}
	}

	items, err := r.fetchItems(ctx, tx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit update order tx: %w", err)
	}
	return order, nil
}

// Delete удаляет заказ и его позиции. Позиции каскадируются внешним ключом,
// но удаляем их явно, чтобы не зависеть от схемы.
func (r *OrderRepository) Delete(orderID, userID string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete order tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = r.fetchOrder(ctx, tx, orderID, userID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items for %s: %w", orderID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete order tx: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// fetchOrder читает строку заказа и проверяет владельца.
func (r *OrderRepository) fetchOrder(ctx context.Context, q queryer, orderID, userID string) (domain.Order, error) {
	var order domain.Order
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, number, address, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(&order.ID, &order.UserID, &order.Number, &order.Address, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		return domain.Order{}, domain.ErrOrderForbidden
	}
	return order, nil
}

func (r *OrderRepository) fetchItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return items, nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, orderID string, item domain.OrderItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, qty, price_minor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, orderID, item.ProductID, item.Qty, item.PriceMinor, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order item %s: %w", item.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
