package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                int64
	FarmerID          int64
	Name              string
	Description       string
	Price             decimal.Decimal
	AvailableQuantity int
	Location          string
	CreatedAt         time.Time
}

// InStock reports whether at least one unit can be put into a cart.
func (p *Product) InStock() bool {
	return p.AvailableQuantity > 0
}
