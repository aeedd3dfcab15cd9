package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientCash   = errors.New("cash value is lower than the order total")
	ErrGatewayUnavailable = errors.New("payment gateway is not configured")
)

// FormError reports a missing or malformed checkout field.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InactiveProductsError names cart products that were deactivated after being
// added. No order is created while any remain in the cart.
type InactiveProductsError struct {
	Products []string
}

func (e *InactiveProductsError) Error() string {
	return "products no longer available: " + strings.Join(e.Products, ", ")
}
