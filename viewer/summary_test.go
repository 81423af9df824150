package viewer

import (
	"testing"

	"showtime-booking/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSummaryEmptySelection(t *testing.T) {
	assert.Nil(t, ComputeSummary(nil, FeePolicy{FeeBasisPoints: 1000, TaxBasisPoints: 800}))
	assert.Nil(t, ComputeSummary([]shared.Seat{}, FeePolicy{}))
}

func TestComputeSummaryTwoSeats(t *testing.T) {
	// 12.50 + 18.00 under a 10% fee and 8% tax policy.
	seats := []shared.Seat{
		{ID: "A1", PriceCents: 1250},
		{ID: "A2", PriceCents: 1800},
	}
	policy := FeePolicy{FeeBasisPoints: 1000, TaxBasisPoints: 800}

	summary := ComputeSummary(seats, policy)
	require.NotNil(t, summary)
	assert.Equal(t, int64(3050), summary.SubtotalCents)
	assert.Equal(t, int64(305), summary.FeeCents)
	assert.Equal(t, int64(244), summary.TaxCents)
	assert.Equal(t, int64(3599), summary.TotalCents)
}

func TestComputeSummaryDeterministic(t *testing.T) {
	seats := []shared.Seat{{ID: "B3", PriceCents: 1337}}
	policy := FeePolicy{FeeBasisPoints: 1000, TaxBasisPoints: 800}

	first := ComputeSummary(seats, policy)
	second := ComputeSummary(seats, policy)
	assert.Equal(t, first, second)
}

func TestComputeSummaryRoundsHalfUp(t *testing.T) {
	// 10.05 at 10%: 100.5 cents rounds up to 101.
	seats := []shared.Seat{{ID: "C1", PriceCents: 1005}}
	policy := FeePolicy{FeeBasisPoints: 1000}

	summary := ComputeSummary(seats, policy)
	require.NotNil(t, summary)
	assert.Equal(t, int64(101), summary.FeeCents)
	assert.Equal(t, int64(0), summary.TaxCents)
	assert.Equal(t, int64(1106), summary.TotalCents)
}

func TestComputeSummaryZeroRates(t *testing.T) {
	seats := []shared.Seat{{ID: "A1", PriceCents: 1250}}

	summary := ComputeSummary(seats, FeePolicy{})
	require.NotNil(t, summary)
	assert.Equal(t, int64(1250), summary.SubtotalCents)
	assert.Equal(t, int64(1250), summary.TotalCents)
}
