package adapter

import (
	"context"

	"membership-checkout/internal/domain/model"
)

// ProcessorGateway is the hex port for the payment processor. Card data stays
// inside the processor's hosted fields; this port only ever sees the opaque
// hosted-fields session reference and billing details.
type ProcessorGateway interface {
	Name() string

	// CreatePaymentMethod exchanges a hosted-fields session plus billing
	// details for a tokenized payment method. Card-level problems come back
	// as *domain.ValidationError (field-level, re-editable).
	CreatePaymentMethod(ctx context.Context, cardSession string, billing model.BillingDetails) (*model.TokenizedPaymentMethod, error)

	// ConfirmIntent drives a client secret to a charge outcome with the
	// given payment method. Declines come back as
	// *domain.ProcessorDeclineError; transport failures as
	// *domain.NetworkError.
	ConfirmIntent(ctx context.Context, clientSecret, methodID string) (model.IntentStatus, error)

	// CreateIntent opens a payment intent server-side (used by the
	// settlement backend, never by the client flow).
	CreateIntent(ctx context.Context, amount int64, currency string, meta map[string]string) (id, clientSecret string, err error)

	// RetrieveIntentStatus reports the processor's view of an intent, used
	// by the settlement backend to verify the charge before granting.
	RetrieveIntentStatus(ctx context.Context, intentID string) (model.IntentStatus, error)
}
