package domain

import "time"

// CartLine is one (user, product) pairing awaiting checkout.
// At most one line exists per pairing.
type CartLine struct {
	ID        string    `json:"id" bson:"line_id"`
	UserID    int64     `json:"user_id" bson:"-"`
	ProductID int64     `json:"product_id" bson:"product_id"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
}

// LineSnapshot is a cart line as it was priced. A drain only succeeds
// while the line still holds exactly this quantity.
type LineSnapshot struct {
	ID       string
	Quantity int
}

// Snapshot pins lines at their current quantities, in their original order.
func Snapshot(lines []CartLine) []LineSnapshot {
	snaps := make([]LineSnapshot, len(lines))
	for i, l := range lines {
		snaps[i] = LineSnapshot{ID: l.ID, Quantity: l.Quantity}
	}
	return snaps
}

// SnapshotIDs returns the line ids of snaps.
func SnapshotIDs(snaps []LineSnapshot) []string {
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
	}
	return ids
}
