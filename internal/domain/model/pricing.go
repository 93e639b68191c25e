package model

// PriceLine is one display row of a checkout total.
type PriceLine struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// PriceBreakdown is the kind-specific decomposition of what the user pays.
// It is display-only; the backend remains the authority on the charged
// amount.
type PriceBreakdown struct {
	Lines []PriceLine `json:"lines"`
	Total int64       `json:"total"`
}

// BreakdownFunc computes the breakdown for one purchase kind. Kind-specific
// differences (the event service fee) live here instead of forking the
// coordinator control flow.
type BreakdownFunc func(r *PurchasableResource) *PriceBreakdown

// MembershipBreakdown prices a club membership: the plain resource price.
func MembershipBreakdown(r *PurchasableResource) *PriceBreakdown {
	return &PriceBreakdown{
		Lines: []PriceLine{{Label: "Membership", Amount: r.Price}},
		Total: r.Price,
	}
}

// RegistrationBreakdown prices an event ticket plus a service fee expressed
// in basis points of the ticket price.
func RegistrationBreakdown(feeBps int64) BreakdownFunc {
	return func(r *PurchasableResource) *PriceBreakdown {
		fee := r.Price * feeBps / 10_000
		lines := []PriceLine{{Label: "Ticket", Amount: r.Price}}
		if fee > 0 {
			lines = append(lines, PriceLine{Label: "Service fee", Amount: fee})
		}
		return &PriceBreakdown{Lines: lines, Total: r.Price + fee}
	}
}
