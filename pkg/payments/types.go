//go:generate mockgen --source types.go --destination mocks.go --package payments
package payments

import (
	"context"
	"time"
)

// Invoice is a payment request issued for one job.
type Invoice struct {
	// Invoice is the opaque payment-request string handed to the payer.
	Invoice string
	// PaymentReference is the canonical identifier used to match a settled
	// payment back to this invoice. It is stable even when the invoice
	// string varies in representation.
	PaymentReference string
}

// PaymentResult is the outcome of paying an invoice. A payment that is still
// pending at the wallet layer is not an error: Settled is simply false.
type PaymentResult struct {
	PaymentReference string
	Settled          bool
}

// SettlementStatus is the typed settlement lookup result. Provider status
// fields are empirically unreliable, so the presence of any settlement proof
// is the authoritative signal; see HasProof.
type SettlementStatus struct {
	// Settled is the provider's nominal settled flag.
	Settled bool
	// Preimage is the payment preimage, when the provider exposes one.
	Preimage string
	// SettledAmount is the amount actually paid, in units.
	SettledAmount uint64
	// SettledAt is the settlement timestamp, when known.
	SettledAt time.Time
	// Expired reports that the invoice can no longer be paid.
	Expired bool
}

// HasProof reports whether the status carries any settlement proof. A lookup
// whose nominal Settled flag is false but that exposes a preimage, a
// settlement timestamp or a paid amount is settled.
func (s SettlementStatus) HasProof() bool {
	return s.Settled || s.Preimage != "" || s.SettledAmount > 0 || !s.SettledAt.IsZero()
}

// Provider is the Lightning wallet capability consumed by both roles.
type Provider interface {
	// CreateInvoice issues an invoice for the given amount.
	CreateInvoice(ctx context.Context, amountUnits uint64, memo string) (Invoice, error)
	// PayInvoice pays an invoice, bounded by a fee budget.
	PayInvoice(ctx context.Context, invoice string, maxFeeUnits uint64) (PaymentResult, error)
	// CheckSettlement looks up the settlement status of a payment reference.
	CheckSettlement(ctx context.Context, paymentReference string) (SettlementStatus, error)
}
