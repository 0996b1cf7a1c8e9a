package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	model "lot-auction/internal/models"
	"lot-auction/internal/repository"
)

func TestSeedDemoData_KeepsExistingAuctionState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		open func(t *testing.T) store
	}{
		{
			name: "memory",
			open: func(t *testing.T) store { return repository.NewMemoryRepo() },
		},
		{
			name: "sqlite",
			open: func(t *testing.T) store {
				repo, err := repository.OpenGormRepo(":memory:")
				require.NoError(t, err)
				t.Cleanup(func() { _ = repo.Close() })
				return repo
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := tt.open(t)
			require.NoError(t, seedDemoData(repo))

			n, err := repo.CountLots()
			require.NoError(t, err)
			require.Equal(t, int64(4), n)

			_, err = repo.RecordBid(model.Bid{LotID: 1, BidderID: 2, Amount: decimal.NewFromInt(120000)},
				func(model.Lot, *model.Subscription) (bool, error) { return true, nil })
			require.NoError(t, err)

			// a restart seeds again
			require.NoError(t, seedDemoData(repo))

			lot, err := repo.GetLot(1)
			require.NoError(t, err)
			require.NotNil(t, lot.WinnerID)
			require.Equal(t, int64(2), *lot.WinnerID)
			require.NotNil(t, lot.LastBid)
			require.Equal(t, lot.LastBid.BidderID, *lot.WinnerID)

			sub, err := repo.GetSubscription(2, 1)
			require.NoError(t, err)
			require.Equal(t, 2, sub.TokensAvailable)
		})
	}
}
