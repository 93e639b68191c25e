package model

// PurchaseKind distinguishes the two access grants sold through checkout.
// The flows are identical; kind only selects the pricing breakdown and the
// grant the backend records.
type PurchaseKind string

const (
	KindMembership   PurchaseKind = "membership"   // recurring club access
	KindRegistration PurchaseKind = "registration" // one event ticket
)

func (k PurchaseKind) Valid() bool {
	return k == KindMembership || k == KindRegistration
}

// PurchasableResource is the read-only pricing context for one checkout
// session. Fetched once; re-fetched only when a session is abandoned and
// restarted.
type PurchasableResource struct {
	ID          string
	Kind        PurchaseKind
	Name        string
	Description string
	Price       int64 // minor units
	Currency    string
}

// IsFree decides whether checkout bypasses the payment machinery entirely.
func (r *PurchasableResource) IsFree() bool { return r.Price <= 0 }
