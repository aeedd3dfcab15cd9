package cart

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

// ErrProductNotFound is returned when adding a product that does not exist
// or is no longer sold.
var ErrProductNotFound = errors.New("product not found")

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// AddItem adds one unit of an active product, incrementing the existing line.
func (r *CartRepository) AddItem(ctx context.Context, cartID, productID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM products WHERE id = $1`, productID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return ErrProductNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (id, created_at) VALUES ($1, NOW())
		ON CONFLICT (id) DO NOTHING
	`, cartID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + 1
	`, cartID, productID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the cart with every line joined to its product, including
// lines whose product was deactivated after it was added.
func (r *CartRepository) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.price, ci.quantity, p.is_active
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY p.name
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart := &domain.Cart{ID: cartID, Lines: []domain.CartLine{}}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Price, &line.Quantity, &line.Active); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// Clear removes every item; the cart row itself is kept for the session.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}
