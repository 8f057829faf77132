package domain

import "errors"

// Errors shared by stores and services.
var (
	ErrNotFound                   = errors.New("not found")
	ErrForbidden                  = errors.New("forbidden")
	ErrInvalidStateTransition     = errors.New("invalid payment state transition")
	ErrConcurrentCheckoutConflict = errors.New("cart changed by a concurrent checkout")
	ErrStockExhausted             = errors.New("product is out of stock")
	ErrInvalidQuantity            = errors.New("quantity must be greater than 0")
)
