package model

// BillingDetails are the only cardholder fields this system inspects
// directly. Card number, expiry and CVC live in processor-hosted fields and
// never enter this process.
type BillingDetails struct {
	Name  string
	Email string
}

// TokenizedPaymentMethod is the processor-issued reference to validated card
// data. It is never persisted; its lifetime is one confirmation attempt.
type TokenizedPaymentMethod struct {
	ID    string
	Brand string
	Last4 string
}
