package viewer

import "showtime-booking/shared"

// BookingSummary is derived pricing for the current selection. All amounts
// are integer cents.
type BookingSummary struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	FeeCents      int64 `json:"fee_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// FeePolicy carries fee and tax rates in basis points so derived amounts
// stay in integer arithmetic (1000 bp = 10%).
type FeePolicy struct {
	FeeBasisPoints int64
	TaxBasisPoints int64
}

// ComputeSummary derives the priced summary of a selection. It is a pure
// function of its inputs and returns nil for an empty selection. Fees and
// taxes are each rounded half-up to the nearest cent.
func ComputeSummary(seats []shared.Seat, policy FeePolicy) *BookingSummary {
	if len(seats) == 0 {
		return nil
	}

	var subtotal int64
	for _, seat := range seats {
		subtotal += seat.PriceCents
	}

	fees := applyBasisPoints(subtotal, policy.FeeBasisPoints)
	taxes := applyBasisPoints(subtotal, policy.TaxBasisPoints)

	return &BookingSummary{
		SubtotalCents: subtotal,
		FeeCents:      fees,
		TaxCents:      taxes,
		TotalCents:    subtotal + fees + taxes,
	}
}

// applyBasisPoints computes amount*bp/10000 rounded half-up.
func applyBasisPoints(amount, bp int64) int64 {
	return (amount*bp + 5000) / 10000
}
