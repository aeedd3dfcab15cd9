package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

// Filter narrows the dashboard listing. Empty fields match everything.
type Filter struct {
	// Status also accepts "late": pending orders older than domain.LateAfter.
	Status        string
	PaymentStatus string
	Search        string
}

const orderColumns = `
	id, customer_name, phone, address, tax_id, email,
	status, payment_status, payment_method, cash_value,
	payment_id, payment_url, stage, created_at, updated_at`

type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, now: time.Now}
}

// Create assigns the order id and stores the order with its items atomically.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	var cashValue decimal.NullDecimal
	if order.CashValue != nil {
		cashValue = decimal.NewNullDecimal(*order.CashValue)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_name, phone, address, tax_id, email,
			status, payment_status, payment_method, cash_value,
			payment_id, payment_url, stage, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, order.ID, order.Customer.Name, order.Customer.Phone, order.Customer.Address,
		order.Customer.TaxID, order.Customer.Email,
		order.State.Status(), order.State.PaymentStatus(), order.PaymentMethod, cashValue,
		order.PaymentID, order.PaymentURL, order.Stage, order.CreatedAt)
	if err != nil {
		return err
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}

	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, uuid.New().String(), orderID, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns nil when the order does not exist. Item prices come from
// the products table at query time.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByPaymentID returns nil when no order carries the gateway payment id.
func (r *OrderRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	if paymentID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, paymentID)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	return order, nil
}

// List returns placed orders, newest first.
func (r *OrderRepository) List(ctx context.Context, f Filter) ([]domain.Order, error) {
	where := []string{"stage = 'placed'"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Status {
	case "":
	case "late":
		where = append(where, "status = 'pending'", "created_at < "+arg(r.now().Add(-domain.LateAfter)))
	default:
		where = append(where, "status = "+arg(f.Status))
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = "+arg(f.PaymentStatus))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, "(customer_name ILIKE "+p+" OR phone ILIKE "+p+")")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []domain.Order
	var orderIDs []string
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.loadItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity, p.price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY p.name
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items[orderID] = append(items[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateState persists a state produced by domain.Transition. It returns
// false when the order does not exist.
func (r *OrderRepository) UpdateState(ctx context.Context, id string, state domain.State) (bool, error) {
	return r.exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1
	`, id, state.Status(), state.PaymentStatus())
}

// Update saves customer details and state, and replaces the items when
// replaceItems is set, all in one transaction.
func (r *OrderRepository) Update(ctx context.Context, order *domain.Order, replaceItems bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_name = $2, phone = $3, address = $4, tax_id = $5, email = $6,
			status = $7, payment_status = $8, updated_at = NOW()
		WHERE id = $1
	`, order.ID, order.Customer.Name, order.Customer.Phone, order.Customer.Address,
		order.Customer.TaxID, order.Customer.Email,
		order.State.Status(), order.State.PaymentStatus())
	if err != nil {
		return err
	}

	if replaceItems {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetPayment records the gateway reference and marks the staged order placed.
func (r *OrderRepository) SetPayment(ctx context.Context, id, paymentID, paymentURL string) error {
	_, err := r.exec(ctx, `
		UPDATE orders
		SET payment_id = $2, payment_url = $3, stage = 'placed', updated_at = NOW()
		WHERE id = $1
	`, id, paymentID, paymentURL)
	return err
}

// AttachPaymentID links a gateway payment to an order that was created
// without one, such as a card preference completed later.
func (r *OrderRepository) AttachPaymentID(ctx context.Context, id, paymentID string) error {
	_, err := r.exec(ctx, `
		UPDATE orders SET payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_id = ''
	`, id, paymentID)
	return err
}

// MarkAbandoned flags a staged order whose gateway step failed.
func (r *OrderRepository) MarkAbandoned(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `
		UPDATE orders SET stage = 'abandoned', updated_at = NOW()
		WHERE id = $1 AND stage = 'awaiting_gateway'
	`, id)
	return err
}

// DeleteStale removes abandoned orders and gateway-staged orders created
// before cutoff. Items cascade.
func (r *OrderRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM orders
		WHERE stage = 'abandoned'
		   OR (stage = 'awaiting_gateway' AND created_at < $1)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *OrderRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
		cashValue     decimal.NullDecimal
	)

	err := row.Scan(
		&order.ID, &order.Customer.Name, &order.Customer.Phone, &order.Customer.Address,
		&order.Customer.TaxID, &order.Customer.Email,
		&status, &paymentStatus, &order.PaymentMethod, &cashValue,
		&order.PaymentID, &order.PaymentURL, &order.Stage, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.State, err = domain.NewState(domain.Status(status), domain.PaymentStatus(paymentStatus))
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}
	if cashValue.Valid {
		order.CashValue = &cashValue.Decimal
	}

	return &order, nil
}
