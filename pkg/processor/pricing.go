package processor

import "github.com/dvm-project/dvmkit/pkg/models"

const quoteBlockBytes = 1024

// QuoterParams configure the deterministic price function.
type QuoterParams struct {
	// BasePriceUnits is charged for any job.
	BasePriceUnits uint64
	// PricePerKBUnits is charged per started kilobyte of input.
	PricePerKBUnits uint64
	// MinPriceUnits is the floor the quote is clamped to.
	MinPriceUnits uint64
}

// Quoter computes the price quoted for a job as a deterministic function of
// the estimated workload, clamped to a configured minimum. Determinism
// matters: re-quoting the same request must never produce a different price.
type Quoter struct {
	basePriceUnits  uint64
	pricePerKBUnits uint64
	minPriceUnits   uint64
}

func NewQuoter(params QuoterParams) *Quoter {
	return &Quoter{
		basePriceUnits:  params.BasePriceUnits,
		pricePerKBUnits: params.PricePerKBUnits,
		minPriceUnits:   params.MinPriceUnits,
	}
}

func (q *Quoter) Quote(request models.JobRequest) uint64 {
	blocks := uint64(len(request.Input)+quoteBlockBytes-1) / quoteBlockBytes
	price := q.basePriceUnits + q.pricePerKBUnits*blocks
	if price < q.minPriceUnits {
		price = q.minPriceUnits
	}
	return price
}
