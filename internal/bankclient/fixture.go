package bankclient

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FixtureClient returns a fixed set of accounts and transactions without
// touching the network. Transaction ids are prefixed with the account id so
// syncing several fixture accounts does not collide on external ids.
type FixtureClient struct{}

// NewFixtureClient creates a FixtureClient.
func NewFixtureClient() *FixtureClient {
	return &FixtureClient{}
}

// Provider returns the provider tag for imported rows.
func (f *FixtureClient) Provider() string { return ProviderVBank }

// GetAccounts returns two fixed accounts.
func (f *FixtureClient) GetAccounts(ctx context.Context) ([]AccountRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	checking := decimal.RequireFromString("150000.00")
	savings := decimal.RequireFromString("500000.00")
	return []AccountRecord{
		{
			ExternalID: "mock_acc_1",
			Name:       "Mock Checking Account",
			Product:    "Debit Card",
			Currency:   "RUB",
			Balance:    &checking,
			Status:     "active",
			Type:       "checking",
		},
		{
			ExternalID: "mock_acc_2",
			Name:       "Mock Savings",
			Product:    "Savings",
			Currency:   "RUB",
			Balance:    &savings,
			Status:     "active",
			Type:       "savings",
		},
	}, nil
}

// GetTransactions returns three fixed transactions for any account. The date
// range is ignored.
func (f *FixtureClient) GetTransactions(ctx context.Context, accountExternalID string, _, _ *time.Time) ([]TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := func(n int) string { return fmt.Sprintf("%s:mock_tx_%d", accountExternalID, n) }
	return []TransactionRecord{
		{
			ExternalID:  id(1),
			Amount:      decimal.RequireFromString("-1500.00"),
			Currency:    "RUB",
			BookingDate: "2023-10-25",
			Description: "Grocery Store",
			Category:    "Food",
			Status:      "posted",
		},
		{
			ExternalID:  id(2),
			Amount:      decimal.RequireFromString("-500.00"),
			Currency:    "RUB",
			BookingDate: "2023-10-26",
			Description: "Coffee Shop",
			Category:    "Dining",
			Status:      "posted",
		},
		{
			ExternalID:  id(3),
			Amount:      decimal.RequireFromString("50000.00"),
			Currency:    "RUB",
			BookingDate: "2023-10-20",
			Description: "Salary",
			Category:    "Income",
			Status:      "posted",
		},
	}, nil
}
