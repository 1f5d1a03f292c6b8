package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fintrek/internal/bankclient"
	apperrors "fintrek/internal/errors"
	"fintrek/internal/models"
	"fintrek/internal/testutil"
)

// stubBankClient serves canned records and remembers what it was asked for.
type stubBankClient struct {
	accounts     []bankclient.AccountRecord
	transactions []bankclient.TransactionRecord
	err          error

	lastAccountID string
}

func (s *stubBankClient) Provider() string { return bankclient.ProviderVBank }

func (s *stubBankClient) GetAccounts(context.Context) ([]bankclient.AccountRecord, error) {
	return s.accounts, s.err
}

func (s *stubBankClient) GetTransactions(_ context.Context, accountID string, _, _ *time.Time) ([]bankclient.TransactionRecord, error) {
	s.lastAccountID = accountID
	return s.transactions, s.err
}

func newTestSyncService(db *gorm.DB, client bankclient.Client) SyncServicer {
	return NewSyncService(db, client, nil, zap.NewNop().Sugar())
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, userID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Scopes(models.OwnedBy(userID)).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestImportAccounts(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestSyncService(db, bankclient.NewFixtureClient())
		user := testutil.CreateTestUser(t, db)
		ctx := context.Background()

		first, err := svc.ImportAccounts(ctx, user.ID)
		testutil.AssertNoError(t, err)
		if first.Created != 2 || first.Updated != 0 {
			t.Errorf("first import: expected 2 created, got %+v", first)
		}

		var before []models.Account
		db.Where("user_id = ?", user.ID).Order("external_id").Find(&before)

		second, err := svc.ImportAccounts(ctx, user.ID)
		testutil.AssertNoError(t, err)
		if second.Created != 0 || second.Updated != 2 {
			t.Errorf("second import: expected 2 updated, got %+v", second)
		}

		var after []models.Account
		db.Where("user_id = ?", user.ID).Order("external_id").Find(&after)
		if len(after) != 2 {
			t.Fatalf("expected exactly 2 accounts, got %d", len(after))
		}
		for i := range after {
			if after[i].ID != before[i].ID || !after[i].Balance.Equal(before[i].Balance) || after[i].Name != before[i].Name {
				t.Errorf("account %d changed across identical imports: %+v vs %+v", i, before[i], after[i])
			}
		}

		checking := after[0]
		if *checking.ExternalID != "mock_acc_1" || checking.Provider != bankclient.ProviderVBank {
			t.Errorf("unexpected first account: %+v", checking)
		}
		if !checking.Balance.Equal(decimal.RequireFromString("150000.00")) || checking.Currency != "RUB" {
			t.Errorf("unexpected balance/currency: %s %s", checking.Balance, checking.Currency)
		}
		if after[1].Type != models.AccountTypeSavings {
			t.Errorf("expected savings type for mock_acc_2, got %s", after[1].Type)
		}
	})

	t.Run("update_refreshes_bank_fields_and_keeps_local_ones", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestSyncedAccount(t, db, user.ID, "acc-9")
		db.Model(existing).Update("description", "my notes")

		stub := &stubBankClient{accounts: []bankclient.AccountRecord{
			{ExternalID: "acc-9", Name: "Renamed", Currency: "usd", Balance: dec("42.10")},
		}}
		res, err := newTestSyncService(db, stub).ImportAccounts(context.Background(), user.ID)
		testutil.AssertNoError(t, err)
		if res.Updated != 1 {
			t.Errorf("expected 1 updated, got %+v", res)
		}

		var stored models.Account
		db.Where("id = ?", existing.ID).First(&stored)
		if stored.Name != "Renamed" || stored.Currency != "USD" || !stored.Balance.Equal(decimal.RequireFromString("42.10")) {
			t.Errorf("bank fields not refreshed: %+v", stored)
		}
		if stored.Description != "my notes" {
			t.Errorf("expected local description kept, got %q", stored.Description)
		}
	})

	t.Run("defaults_for_sparse_records", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		stub := &stubBankClient{accounts: []bankclient.AccountRecord{{ExternalID: "bare"}}}
		_, err := newTestSyncService(db, stub).ImportAccounts(context.Background(), user.ID)
		testutil.AssertNoError(t, err)

		var stored models.Account
		db.Where("user_id = ? AND external_id = ?", user.ID, "bare").First(&stored)
		if stored.Name != defaultImportedAccountName || stored.Currency != "RUB" || stored.Type != models.AccountTypeChecking {
			t.Errorf("unexpected defaults: %+v", stored)
		}
		if !stored.Balance.IsZero() || stored.Status != models.AccountStatusActive {
			t.Errorf("unexpected balance/status: %s %s", stored.Balance, stored.Status)
		}
	})

	t.Run("records_without_id_skipped", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		stub := &stubBankClient{accounts: []bankclient.AccountRecord{{Name: "No id"}, {ExternalID: "ok"}}}
		result, err := newTestSyncService(db, stub).ImportAccounts(context.Background(), user.ID)
		testutil.AssertNoError(t, err)

		if result.Created != 1 || result.Skipped != 1 {
			t.Errorf("expected 1 created and 1 skipped, got %+v", result)
		}
		if n := countRows(t, db, &models.Account{}, user.ID); n != 1 {
			t.Errorf("expected 1 account, got %d", n)
		}
	})

	t.Run("scoped_per_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestSyncService(db, bankclient.NewFixtureClient())
		alice := testutil.CreateTestUser(t, db)
		bob := testutil.CreateTestUser(t, db)

		_, err := svc.ImportAccounts(context.Background(), alice.ID)
		testutil.AssertNoError(t, err)
		_, err = svc.ImportAccounts(context.Background(), bob.ID)
		testutil.AssertNoError(t, err)

		if countRows(t, db, &models.Account{}, alice.ID) != 2 || countRows(t, db, &models.Account{}, bob.ID) != 2 {
			t.Error("expected each user to own their own two accounts")
		}
	})

	t.Run("deleted_account_not_resurrected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		existing := testutil.CreateTestSyncedAccount(t, db, user.ID, "mock_acc_1")
		db.Delete(existing)

		res, err := newTestSyncService(db, bankclient.NewFixtureClient()).ImportAccounts(context.Background(), user.ID)
		testutil.AssertNoError(t, err)
		if res.Skipped != 1 || res.Created != 1 {
			t.Errorf("expected 1 skipped and 1 created, got %+v", res)
		}
		if countRows(t, db, &models.Account{}, user.ID) != 1 {
			t.Error("expected the deleted account to stay deleted")
		}
	})

	t.Run("bank_error", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		connections := newTestConnectionService(t, db)
		conn, err := connections.CreateConnection(user.ID, bankclient.ProviderVBank, "Virtual Bank", "", "")
		testutil.AssertNoError(t, err)

		stub := &stubBankClient{err: &bankclient.APIError{
			Kind:       bankclient.KindUnavailable,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "fetching accounts: connection failed",
		}}
		svc := NewSyncService(db, stub, connections, zap.NewNop().Sugar())

		_, err = svc.ImportAccounts(context.Background(), user.ID)
		testutil.AssertAppError(t, err, "EXTERNAL_API_ERROR")
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", appErr.StatusCode)
		}

		stored, _ := connections.GetConnectionByID(user.ID, conn.ID)
		if stored.LastSyncError == "" {
			t.Error("expected sync error recorded on the connection")
		}
	})
}

func TestImportTransactions(t *testing.T) {
	setup := func(t *testing.T) (*gorm.DB, *models.User, *models.Account) {
		db := testutil.SetupTestDB(t)
		user := testutil.CreateTestUser(t, db)
		_, err := newTestSyncService(db, bankclient.NewFixtureClient()).ImportAccounts(context.Background(), user.ID)
		testutil.AssertNoError(t, err)
		var account models.Account
		db.Where("user_id = ? AND external_id = ?", user.ID, "mock_acc_1").First(&account)
		return db, user, &account
	}

	t.Run("classifies_and_is_idempotent", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestSyncService(db, bankclient.NewFixtureClient())
		ctx := context.Background()

		first, err := svc.ImportTransactions(ctx, user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if first.Created != 3 {
			t.Errorf("expected 3 created, got %+v", first)
		}

		second, err := svc.ImportTransactions(ctx, user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if second.Created != 0 || second.Updated != 3 {
			t.Errorf("expected 3 updated on re-import, got %+v", second)
		}
		if n := countRows(t, db, &models.Transaction{}, user.ID); n != 3 {
			t.Fatalf("expected 3 transactions, got %d", n)
		}

		var grocery, salary models.Transaction
		db.Where("external_id = ?", "mock_acc_1:mock_tx_1").First(&grocery)
		db.Where("external_id = ?", "mock_acc_1:mock_tx_3").First(&salary)

		if grocery.Type != models.TransactionTypeExpense || !grocery.Amount.Equal(decimal.RequireFromString("-1500.00")) {
			t.Errorf("expected -1500.00 expense, got %s %s", grocery.Amount, grocery.Type)
		}
		if salary.Type != models.TransactionTypeIncome {
			t.Errorf("expected 50000.00 to be income, got %s", salary.Type)
		}
		want := time.Date(2023, 10, 25, 0, 0, 0, 0, time.UTC)
		if grocery.TransactionDate == nil || !grocery.TransactionDate.Equal(want) {
			t.Errorf("expected date %s, got %v", want, grocery.TransactionDate)
		}
		if grocery.CategoryGuess != "Food" || grocery.Provider != bankclient.ProviderVBank {
			t.Errorf("unexpected provider fields: %+v", grocery)
		}
		if grocery.AccountID != account.ID {
			t.Errorf("expected account %s, got %s", account.ID, grocery.AccountID)
		}
	})

	t.Run("queries_bank_with_external_id", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		stub := &stubBankClient{}

		_, err := newTestSyncService(db, stub).ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if stub.lastAccountID != "mock_acc_1" {
			t.Errorf("expected external id, got %q", stub.lastAccountID)
		}

		manual := testutil.CreateTestAccount(t, db, user.ID, "0")
		_, err = newTestSyncService(db, stub).ImportTransactions(context.Background(), user.ID, manual.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if stub.lastAccountID != manual.ID {
			t.Errorf("expected local id fallback, got %q", stub.lastAccountID)
		}
	})

	t.Run("account_must_belong_to_user", func(t *testing.T) {
		db, _, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		intruder := testutil.CreateTestUser(t, db)
		svc := newTestSyncService(db, bankclient.NewFixtureClient())

		_, err := svc.ImportTransactions(context.Background(), intruder.ID, account.ID, nil, nil)
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")

		_, err = svc.ImportTransactions(context.Background(), intruder.ID, missingID, nil, nil)
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
	})

	t.Run("bad_date_stored_as_null", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		stub := &stubBankClient{transactions: []bankclient.TransactionRecord{
			{ExternalID: "t-1", Amount: decimal.NewFromInt(-10), BookingDate: "not-a-date"},
			{ExternalID: "t-2", Amount: decimal.NewFromInt(20), BookingDate: "2024-01-01T23:00:00+02:00"},
			{ExternalID: "t-3", Amount: decimal.NewFromInt(30), ValueDate: "2024-01-01T21:00:00Z"},
		}}

		res, err := newTestSyncService(db, stub).ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if res.Created != 3 || res.SkippedDates != 1 {
			t.Errorf("expected 3 created and 1 skipped date, got %+v", res)
		}

		var bad, offset, zulu models.Transaction
		db.Where("external_id = ?", "t-1").First(&bad)
		db.Where("external_id = ?", "t-2").First(&offset)
		db.Where("external_id = ?", "t-3").First(&zulu)
		if bad.TransactionDate != nil {
			t.Errorf("expected NULL date, got %v", bad.TransactionDate)
		}
		if offset.TransactionDate == nil || zulu.TransactionDate == nil || !offset.TransactionDate.Equal(*zulu.TransactionDate) {
			t.Errorf("expected equal instants, got %v and %v", offset.TransactionDate, zulu.TransactionDate)
		}
	})

	t.Run("indicator_wins_over_sign", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		stub := &stubBankClient{transactions: []bankclient.TransactionRecord{
			{ExternalID: "d-1", Amount: decimal.NewFromInt(100), CreditDebitIndicator: "DBIT"},
			{ExternalID: "c-1", Amount: decimal.NewFromInt(-5), CreditDebitIndicator: "Credit"},
		}}

		_, err := newTestSyncService(db, stub).ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)

		var debit, credit models.Transaction
		db.Where("external_id = ?", "d-1").First(&debit)
		db.Where("external_id = ?", "c-1").First(&credit)
		if debit.Type != models.TransactionTypeExpense || !debit.Amount.Equal(decimal.NewFromInt(-100)) {
			t.Errorf("expected -100 expense, got %s %s", debit.Amount, debit.Type)
		}
		if credit.Type != models.TransactionTypeIncome || !credit.Amount.Equal(decimal.NewFromInt(5)) {
			t.Errorf("expected 5 income, got %s %s", credit.Amount, credit.Type)
		}
	})

	t.Run("update_refreshes_amount_and_description_only", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		stub := &stubBankClient{transactions: []bankclient.TransactionRecord{
			{ExternalID: "u-1", Amount: decimal.NewFromInt(-10), Description: "Pending", BookingDate: "2024-03-01"},
		}}
		svc := newTestSyncService(db, stub)
		_, err := svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)

		var tx models.Transaction
		db.Where("external_id = ?", "u-1").First(&tx)
		db.Model(&tx).Update("notes", "split with Bob")

		stub.transactions[0].Amount = decimal.NewFromInt(-12)
		stub.transactions[0].Description = "Settled"
		_, err = svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)

		var stored models.Transaction
		db.Where("id = ?", tx.ID).First(&stored)
		if !stored.Amount.Equal(decimal.NewFromInt(-12)) || stored.Description != "Settled" {
			t.Errorf("expected refreshed amount and description, got %s %q", stored.Amount, stored.Description)
		}
		if stored.Notes != "split with Bob" {
			t.Errorf("expected local notes kept, got %q", stored.Notes)
		}
	})

	t.Run("resync_fills_missing_date", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		stub := &stubBankClient{transactions: []bankclient.TransactionRecord{
			{ExternalID: "n-1", Amount: decimal.NewFromInt(-10), BookingDate: "garbage"},
			{ExternalID: "n-2", Amount: decimal.NewFromInt(-20), BookingDate: "2024-02-01"},
		}}
		svc := newTestSyncService(db, stub)
		_, err := svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)

		stub.transactions[0].BookingDate = "2024-02-03"
		stub.transactions[1].BookingDate = "2024-05-05"
		res, err := svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if res.Updated != 2 || res.SkippedDates != 0 {
			t.Errorf("expected 2 updated and no skipped dates, got %+v", res)
		}

		var filled, kept models.Transaction
		db.Where("external_id = ?", "n-1").First(&filled)
		db.Where("external_id = ?", "n-2").First(&kept)
		want := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
		if filled.TransactionDate == nil || !filled.TransactionDate.Equal(want) {
			t.Errorf("expected missing date filled with %s, got %v", want, filled.TransactionDate)
		}
		stored := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		if kept.TransactionDate == nil || !kept.TransactionDate.Equal(stored) {
			t.Errorf("expected stored date %s kept, got %v", stored, kept.TransactionDate)
		}
	})

	t.Run("user_deleted_transaction_stays_deleted", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestSyncService(db, bankclient.NewFixtureClient())
		_, err := svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)

		db.Where("external_id = ?", "mock_acc_1:mock_tx_2").Delete(&models.Transaction{})

		res, err := svc.ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertNoError(t, err)
		if res.Skipped != 1 || res.Updated != 2 {
			t.Errorf("expected 1 skipped and 2 updated, got %+v", res)
		}
		if n := countRows(t, db, &models.Transaction{}, user.ID); n != 2 {
			t.Errorf("expected 2 visible transactions, got %d", n)
		}
	})

	t.Run("failure_rolls_back_whole_batch", func(t *testing.T) {
		db, user, account := setup(t)
		defer testutil.TeardownTestDB(t, db)

		creates := 0
		err := db.Callback().Create().Before("gorm:create").Register("test:fail_second_transaction", func(tx *gorm.DB) {
			if tx.Statement.Table == "transactions" {
				creates++
				if creates == 2 {
					_ = tx.AddError(errors.New("disk full"))
				}
			}
		})
		testutil.AssertNoError(t, err)

		_, err = newTestSyncService(db, bankclient.NewFixtureClient()).ImportTransactions(context.Background(), user.ID, account.ID, nil, nil)
		testutil.AssertAppError(t, err, "INTERNAL_ERROR")

		if n := countRows(t, db, &models.Transaction{}, user.ID); n != 0 {
			t.Errorf("expected rollback to leave no transactions, got %d", n)
		}
	})
}

func TestParseExternalDate(t *testing.T) {
	utc := func(y int, m time.Month, d, h, min, s int) time.Time {
		return time.Date(y, m, d, h, min, s, 0, time.UTC)
	}
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"2023-10-25", ptrTime(utc(2023, 10, 25, 0, 0, 0))},
		{"2023-10-25T08:30:00", ptrTime(utc(2023, 10, 25, 8, 30, 0))},
		{"2023-10-25T08:30:00.123456", ptrTime(time.Date(2023, 10, 25, 8, 30, 0, 123456000, time.UTC))},
		{"2023-10-25T08:30:00Z", ptrTime(utc(2023, 10, 25, 8, 30, 0))},
		{"2024-01-01T23:00:00+02:00", ptrTime(utc(2024, 1, 1, 21, 0, 0))},
		{" 2023-10-25 ", ptrTime(utc(2023, 10, 25, 0, 0, 0))},
		{"not-a-date", nil},
		{"25/10/2023", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseExternalDate(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %v", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("expected %v, got %v", tt.want, got)
			case got != nil && got.Location() != time.UTC:
				t.Errorf("expected UTC, got %v", got.Location())
			}
		})
	}
}

func TestClassifyAmount(t *testing.T) {
	tests := []struct {
		amount    string
		indicator string
		wantType  models.TransactionType
		wantAmt   string
	}{
		{"-1500.00", "", models.TransactionTypeExpense, "-1500.00"},
		{"50000.00", "", models.TransactionTypeIncome, "50000.00"},
		{"0", "", models.TransactionTypeIncome, "0"},
		{"25", "DBIT", models.TransactionTypeExpense, "-25"},
		{"-25", "CRDT", models.TransactionTypeIncome, "25"},
		{"-7", "unknown", models.TransactionTypeExpense, "-7"},
	}
	for _, tt := range tests {
		gotType, gotAmt := classifyAmount(decimal.RequireFromString(tt.amount), tt.indicator)
		if gotType != tt.wantType || !gotAmt.Equal(decimal.RequireFromString(tt.wantAmt)) {
			t.Errorf("classifyAmount(%s, %q) = %s %s, want %s %s", tt.amount, tt.indicator, gotType, gotAmt, tt.wantType, tt.wantAmt)
		}
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
