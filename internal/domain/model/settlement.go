package model

import "time"

// SettlementRecord is the backend-durable link between a captured charge and
// the access it bought. Created at most once per intent id and never mutated.
// Free registrations carry an empty IntentID.
type SettlementRecord struct {
	ID         string
	IntentID   string
	UserID     string
	ResourceID string
	Kind       PurchaseKind
	GrantID    string // membership id or registration id, depending on Kind
	Amount     int64
	CreatedAt  time.Time
}
