package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dvm-project/dvmkit/pkg/models"
)

func TestQuoteScalesWithInputSize(t *testing.T) {
	quoter := NewQuoter(QuoterParams{
		BasePriceUnits:  5,
		PricePerKBUnits: 2,
		MinPriceUnits:   1,
	})

	require.EqualValues(t, 5, quoter.Quote(models.JobRequest{Input: ""}))
	require.EqualValues(t, 7, quoter.Quote(models.JobRequest{Input: "short prompt"}))
	require.EqualValues(t, 7, quoter.Quote(models.JobRequest{Input: strings.Repeat("a", 1024)}))
	require.EqualValues(t, 9, quoter.Quote(models.JobRequest{Input: strings.Repeat("a", 1025)}))
}

func TestQuoteIsClampedToMinimum(t *testing.T) {
	quoter := NewQuoter(QuoterParams{MinPriceUnits: 10})
	require.EqualValues(t, 10, quoter.Quote(models.JobRequest{Input: "anything"}))
}

func TestQuoteIsDeterministic(t *testing.T) {
	quoter := NewQuoter(QuoterParams{BasePriceUnits: 3, PricePerKBUnits: 1, MinPriceUnits: 1})
	request := models.JobRequest{Input: strings.Repeat("b", 3000)}
	first := quoter.Quote(request)
	require.Equal(t, first, quoter.Quote(request))
}
