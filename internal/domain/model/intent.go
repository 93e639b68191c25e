package model

import "time"

type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusFailed                IntentStatus = "failed"
)

// Terminal reports whether the intent can no longer move.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusSucceeded || s == IntentStatusCanceled || s == IntentStatusFailed
}

// PaymentIntent is the processor-issued authorization object for one
// attempted charge. The client secret is single-use and scoped to exactly one
// confirmation attempt; the backend hands out the same unresolved intent for
// repeated provisioning requests on one (user, resource) pair.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	UserID       string
	ResourceID   string
	Kind         PurchaseKind
	Amount       int64 // minor units
	Currency     string
	Status       IntentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resolved reports whether a new intent would be needed for another attempt.
func (p *PaymentIntent) Resolved() bool { return p.Status.Terminal() }
