package model

import "time"

// CheckoutState is the coordinator state machine. Transitions are monotonic
// toward a terminal state except for the AwaitingCardInput loop (declines and
// validation errors are re-editable) and SessionExpired, which parks the flow
// until re-authentication.
type CheckoutState string

const (
	StateIdle                    CheckoutState = "idle"
	StateFetchingResource        CheckoutState = "fetching_resource"
	StateFreeRegistration        CheckoutState = "free_registration"
	StateProvisioningIntent      CheckoutState = "provisioning_intent"
	StateAwaitingCardInput       CheckoutState = "awaiting_card_input"
	StateSubmitting              CheckoutState = "submitting"
	StateConfirmingWithProcessor CheckoutState = "confirming_with_processor"
	StateSettlingWithBackend     CheckoutState = "settling_with_backend"
	StateSettlementRetryRequired CheckoutState = "settlement_retry_required"
	StateSessionExpired          CheckoutState = "session_expired"
	StateSucceeded               CheckoutState = "succeeded"
	StateCancelled               CheckoutState = "cancelled"
	StateFatalError              CheckoutState = "fatal_error"
)

func (s CheckoutState) Terminal() bool {
	return s == StateSucceeded || s == StateCancelled || s == StateFatalError
}

// FailureKind qualifies a FatalError so callers can tell "no charge happened"
// apart from "charge happened, grant pending".
type FailureKind string

const (
	FailureNone                    FailureKind = ""
	FailureResource                FailureKind = "resource_error"
	FailureNetwork                 FailureKind = "network_error"
	FailureSettlementInconsistency FailureKind = "settlement_inconsistency"
)

// CheckoutSession is the persisted in-flight state of one checkout. It
// survives re-authentication so the coordinator can resume at the step that
// was interrupted instead of restarting a step whose side effect already
// completed.
type CheckoutSession struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	Kind       PurchaseKind  `json:"kind"`
	ResourceID string        `json:"resourceId"`
	State      CheckoutState `json:"state"`
	// ResumeState is set while State == StateSessionExpired and names the
	// step to re-enter after re-authentication.
	ResumeState CheckoutState `json:"resumeState,omitempty"`

	Resource  *PurchasableResource `json:"resource,omitempty"`
	Breakdown *PriceBreakdown      `json:"breakdown,omitempty"`

	IntentID     string `json:"intentId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`

	// ChargeCaptured flips once the processor reports a successful charge.
	// From then on cancellation is rejected and the flow must drive to
	// Succeeded or park in SettlementRetryRequired.
	ChargeCaptured bool `json:"chargeCaptured"`

	SettlementID string `json:"settlementId,omitempty"`
	GrantID      string `json:"grantId,omitempty"`

	DeclineCode    string `json:"declineCode,omitempty"`
	DeclineMessage string `json:"declineMessage,omitempty"`

	Failure       FailureKind `json:"failure,omitempty"`
	FailureDetail string      `json:"failureDetail,omitempty"`

	// SettleRounds counts failed settlement rounds (automatic and manual)
	// for the retry cap.
	SettleRounds int `json:"settleRounds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *CheckoutSession) Terminal() bool { return s.State.Terminal() }

// CanCancel is false once a charge is captured: abandoning the flow then
// would orphan money the user already paid.
func (s *CheckoutSession) CanCancel() bool {
	return !s.ChargeCaptured && !s.Terminal()
}
