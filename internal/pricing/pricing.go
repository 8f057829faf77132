// Package pricing computes line subtotals and cart totals in fixed-point
// decimal arithmetic. Every amount is quantized to two places with half-up
// rounding; binary floating point is never involved.
package pricing

import (
	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/shopspring/decimal"
)

const Places = 2

type Line struct {
	ProductID   int64
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	Subtotal    decimal.Decimal
}

type Quote struct {
	Lines []Line
	Total decimal.Decimal
}

// Subtotal returns price*quantity rounded half-up to two places.
func Subtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(Places)
}

// Total sums already rounded subtotals and re-quantizes the result.
func Total(subtotals ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range subtotals {
		total = total.Add(s)
	}
	return total.Round(Places)
}

// Price fills in each line's subtotal and the grand total.
func Price(lines []Line) Quote {
	priced := make([]Line, len(lines))
	subtotals := make([]decimal.Decimal, len(lines))
	for i, l := range lines {
		l.Subtotal = Subtotal(l.UnitPrice, l.Quantity)
		priced[i] = l
		subtotals[i] = l.Subtotal
	}
	return Quote{Lines: priced, Total: Total(subtotals...)}
}

// OrderItems converts quoted lines into order items with frozen unit prices.
func (q Quote) OrderItems() []domain.OrderItem {
	items := make([]domain.OrderItem, len(q.Lines))
	for i, l := range q.Lines {
		items[i] = domain.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}
	return items
}
