package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// CanTransitionTo allows pending->paid and pending->failed only.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusPending && next.IsTerminal()
}

func (s PaymentStatus) String() string {
	return string(s)
}

type Payment struct {
	TransactionID string          `json:"transaction_id"`
	BuyerID       int64           `json:"buyer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status"`
	Method        string          `json:"method"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const PaymentKindCard = "card"

// PaymentMethod is the simulated settlement payload submitted at checkout.
type PaymentMethod struct {
	Kind           string `json:"kind"`
	CardholderName string `json:"cardholder_name"`
	CardNumber     string `json:"card_number"`
	Expiry         string `json:"expiry"`
	CVV            string `json:"cvv"`
}

// MissingFields lists required payload fields that are empty.
func (m PaymentMethod) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"cardholder_name", m.CardholderName},
		{"card_number", m.CardNumber},
		{"expiry", m.Expiry},
		{"cvv", m.CVV},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Descriptor is the free-form method string stored on the payment.
// The card number is reduced to its last four digits.
func (m PaymentMethod) Descriptor() string {
	kind := m.Kind
	if kind == "" {
		kind = PaymentKindCard
	}
	digits := strings.ReplaceAll(strings.TrimSpace(m.CardNumber), " ", "")
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	if digits == "" {
		return kind
	}
	return kind + " ****" + digits
}
