package domain

type CheckoutState string

const (
	CheckoutStateInit             CheckoutState = "INIT"
	CheckoutStateValidating       CheckoutState = "VALIDATING"
	CheckoutStatePaymentPending   CheckoutState = "PAYMENT_PENDING"
	CheckoutStateSettled          CheckoutState = "SETTLED"
	CheckoutStateSettlementFailed CheckoutState = "SETTLEMENT_FAILED"
	CheckoutStateOrderCommitted   CheckoutState = "ORDER_COMMITTED"
	CheckoutStateFailed           CheckoutState = "FAILED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateInit:           {CheckoutStateValidating},
	CheckoutStateValidating:     {CheckoutStatePaymentPending, CheckoutStateFailed},
	CheckoutStatePaymentPending: {CheckoutStateSettled, CheckoutStateSettlementFailed},
	CheckoutStateSettled:        {CheckoutStateOrderCommitted, CheckoutStateFailed},
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateOrderCommitted ||
		s == CheckoutStateSettlementFailed ||
		s == CheckoutStateFailed
}

func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
