package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryProvider is a Provider used for testing and the local devstack.
// Tests can settle, expire or proof-only-settle invoices and inspect call
// counts.
type InMemoryProvider struct {
	mu       sync.Mutex
	invoices map[string]*memoryInvoice

	// PaySettlesImmediately makes PayInvoice report settled. When false,
	// payments are reported pending at the wallet layer even though the
	// invoice is marked settled, mimicking in-flight HTLC responses.
	PaySettlesImmediately bool

	createInvoiceCalls   int
	checkSettlementCalls int
	failNextChecks       int
}

type memoryInvoice struct {
	amountUnits   uint64
	memo          string
	settled       bool
	preimage      string
	settledAmount uint64
	settledAt     time.Time
	expired       bool
}

func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		invoices:              make(map[string]*memoryInvoice),
		PaySettlesImmediately: true,
	}
}

func (p *InMemoryProvider) CreateInvoice(ctx context.Context, amountUnits uint64, memo string) (Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createInvoiceCalls++
	reference := uuid.NewString()
	p.invoices[reference] = &memoryInvoice{
		amountUnits: amountUnits,
		memo:        memo,
	}
	return Invoice{
		Invoice:          "lnmem1" + reference,
		PaymentReference: reference,
	}, nil
}

func (p *InMemoryProvider) PayInvoice(ctx context.Context, invoice string, maxFeeUnits uint64) (PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reference := referenceFromInvoice(invoice)
	record, ok := p.invoices[reference]
	if !ok {
		return PaymentResult{}, NewErrUnknownReference(reference)
	}
	if record.expired {
		return PaymentResult{}, fmt.Errorf("invoice %s has expired", reference)
	}
	record.settled = true
	record.preimage = uuid.NewString()
	record.settledAmount = record.amountUnits
	record.settledAt = time.Now().UTC()
	return PaymentResult{
		PaymentReference: reference,
		Settled:          p.PaySettlesImmediately,
	}, nil
}

func (p *InMemoryProvider) CheckSettlement(ctx context.Context, paymentReference string) (SettlementStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkSettlementCalls++
	if p.failNextChecks > 0 {
		p.failNextChecks--
		return SettlementStatus{}, NewErrTransient(fmt.Errorf("provider unavailable"))
	}
	record, ok := p.invoices[paymentReference]
	if !ok {
		return SettlementStatus{}, NewErrUnknownReference(paymentReference)
	}
	return SettlementStatus{
		Settled:       record.settled,
		Preimage:      record.preimage,
		SettledAmount: record.settledAmount,
		SettledAt:     record.settledAt,
		Expired:       record.expired,
	}, nil
}

// SettleInvoice marks an invoice fully settled with all proof fields set.
func (p *InMemoryProvider) SettleInvoice(paymentReference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if record, ok := p.invoices[paymentReference]; ok {
		record.settled = true
		record.preimage = uuid.NewString()
		record.settledAmount = record.amountUnits
		record.settledAt = time.Now().UTC()
	}
}

// SettleWithProofOnly marks an invoice settled through a preimage only,
// leaving the nominal settled flag false. Real providers do this.
func (p *InMemoryProvider) SettleWithProofOnly(paymentReference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if record, ok := p.invoices[paymentReference]; ok {
		record.preimage = uuid.NewString()
	}
}

// ExpireInvoice marks an invoice as no longer payable.
func (p *InMemoryProvider) ExpireInvoice(paymentReference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if record, ok := p.invoices[paymentReference]; ok {
		record.expired = true
	}
}

// FailNextChecks makes the next n settlement lookups fail transiently.
func (p *InMemoryProvider) FailNextChecks(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNextChecks = n
}

// CreateInvoiceCalls returns how many invoices were requested.
func (p *InMemoryProvider) CreateInvoiceCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createInvoiceCalls
}

// CheckSettlementCalls returns how many settlement lookups were made.
func (p *InMemoryProvider) CheckSettlementCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkSettlementCalls
}

func referenceFromInvoice(invoice string) string {
	if len(invoice) > len("lnmem1") {
		return invoice[len("lnmem1"):]
	}
	return invoice
}

// compile-time interface check
var _ Provider = (*InMemoryProvider)(nil)
