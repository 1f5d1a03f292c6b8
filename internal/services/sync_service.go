package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fintrek/internal/bankclient"
	apperrors "fintrek/internal/errors"
	"fintrek/internal/models"
)

// externalDateLayouts are tried in order; the first that parses wins.
var externalDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

const defaultImportedAccountName = "VBank account"

// syncService reconciles bank data into local accounts and transactions.
// Records are matched on (user_id, external_id); every call writes inside a
// single database transaction.
type syncService struct {
	db          *gorm.DB
	client      bankclient.Client
	connections BankConnectionServicer
	locks       *accountLocks
	log         *zap.SugaredLogger
}

// NewSyncService creates a new SyncServicer. connections may be nil.
func NewSyncService(db *gorm.DB, client bankclient.Client, connections BankConnectionServicer, log *zap.SugaredLogger) SyncServicer {
	return &syncService{
		db:          db,
		client:      client,
		connections: connections,
		locks:       newAccountLocks(),
		log:         log,
	}
}

// ImportAccounts fetches the bank's accounts and upserts them for userID.
func (s *syncService) ImportAccounts(ctx context.Context, userID string) (*SyncResult, error) {
	unlock := s.locks.Lock("user:" + userID)
	defer unlock()

	records, err := s.client.GetAccounts(ctx)
	if err != nil {
		s.recordSync(userID, err)
		return nil, externalError(err)
	}

	result := &SyncResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := s.upsertAccount(tx, userID, rec, result); err != nil {
				return err
			}
		}
		return nil
	})
	s.recordSync(userID, err)
	if err != nil {
		return nil, storeError(err)
	}

	s.log.Infow("accounts imported",
		"user_id", userID,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *syncService) upsertAccount(tx *gorm.DB, userID string, rec bankclient.AccountRecord, result *SyncResult) error {
	if rec.ExternalID == "" {
		result.Skipped++
		return nil
	}

	var existing models.Account
	err := tx.Unscoped().Where("user_id = ? AND external_id = ?", userID, rec.ExternalID).First(&existing).Error
	switch {
	case err == nil:
		if existing.DeletedAt.Valid {
			result.Skipped++
			return nil
		}
		updates := map[string]interface{}{}
		if rec.Balance != nil {
			updates["balance"] = *rec.Balance
		}
		if rec.Currency != "" {
			updates["currency"] = strings.ToUpper(rec.Currency)
		}
		if name := firstNonEmpty(rec.Name, rec.Product); name != "" {
			updates["name"] = name
		}
		if len(updates) > 0 {
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
		}
		result.Updated++
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	externalID := rec.ExternalID
	balance := decimal.Zero
	if rec.Balance != nil {
		balance = *rec.Balance
	}
	account := &models.Account{
		UserID:        userID,
		ExternalID:    &externalID,
		Provider:      s.client.Provider(),
		Name:          firstNonEmpty(rec.Name, rec.Product, defaultImportedAccountName),
		Type:          accountTypeFor(rec.Type),
		Description:   rec.Product,
		AccountNumber: rec.IBAN,
		Balance:       balance,
		Currency:      strings.ToUpper(firstNonEmpty(rec.Currency, "RUB")),
		Status:        models.AccountStatusActive,
	}
	if err := tx.Create(account).Error; err != nil {
		return err
	}
	result.Created++
	return nil
}

// ImportTransactions fetches transactions of one of the user's accounts and
// upserts them. Unparsable dates are stored as NULL and counted, never fatal.
func (s *syncService) ImportTransactions(ctx context.Context, userID, accountID string, from, to *time.Time) (*SyncResult, error) {
	unlock := s.locks.Lock("account:" + accountID)
	defer unlock()

	var account models.Account
	if err := s.db.WithContext(ctx).Scopes(models.OwnedRecord(accountID, userID)).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	remoteID := account.ID
	if account.ExternalID != nil && *account.ExternalID != "" {
		remoteID = *account.ExternalID
	}

	records, err := s.client.GetTransactions(ctx, remoteID, from, to)
	if err != nil {
		s.recordSync(userID, err)
		return nil, externalError(err)
	}

	result := &SyncResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := s.upsertTransaction(tx, userID, &account, rec, result); err != nil {
				return err
			}
		}
		return nil
	})
	s.recordSync(userID, err)
	if err != nil {
		return nil, storeError(err)
	}

	s.log.Infow("transactions imported",
		"user_id", userID,
		"account_id", account.ID,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"skipped_dates", result.SkippedDates,
	)
	return result, nil
}

func (s *syncService) upsertTransaction(tx *gorm.DB, userID string, account *models.Account, rec bankclient.TransactionRecord, result *SyncResult) error {
	if rec.ExternalID == "" {
		result.Skipped++
		return nil
	}

	txType, amount := classifyAmount(rec.Amount, rec.CreditDebitIndicator)
	description := firstNonEmpty(rec.Description, rec.MerchantName)

	var existing models.Transaction
	err := tx.Unscoped().Where("user_id = ? AND external_id = ?", userID, rec.ExternalID).First(&existing).Error
	switch {
	case err == nil:
		// Deleted by the user; do not bring it back.
		if existing.DeletedAt.Valid {
			result.Skipped++
			return nil
		}
		updates := map[string]interface{}{
			"amount":      amount,
			"type":        txType,
			"description": description,
		}
		// A date the bank could not give before is filled in; a stored one is kept.
		if existing.TransactionDate == nil {
			if date := s.recordDate(rec, result); date != nil {
				updates["transaction_date"] = *date
			}
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		result.Updated++
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	date := s.recordDate(rec, result)

	externalID := rec.ExternalID
	transaction := &models.Transaction{
		UserID:          userID,
		AccountID:       account.ID,
		ExternalID:      &externalID,
		Provider:        s.client.Provider(),
		Type:            txType,
		Status:          models.TransactionStatusCompleted,
		Amount:          amount,
		Currency:        strings.ToUpper(firstNonEmpty(rec.Currency, account.Currency)),
		TransactionDate: date,
		Description:     description,
		MerchantName:    rec.MerchantName,
		CategoryGuess:   rec.Category,
	}
	if err := tx.Create(transaction).Error; err != nil {
		return err
	}
	result.Created++
	return nil
}

// recordDate parses the booking date, falling back to the value date. An
// unparsable value yields nil and is counted in SkippedDates.
func (s *syncService) recordDate(rec bankclient.TransactionRecord, result *SyncResult) *time.Time {
	raw := firstNonEmpty(rec.BookingDate, rec.ValueDate)
	if raw == "" {
		return nil
	}
	date := ParseExternalDate(raw)
	if date == nil {
		result.SkippedDates++
		s.log.Warnw("unparsable transaction date stored as null",
			"external_id", rec.ExternalID,
			"value", raw,
		)
	}
	return date
}

func (s *syncService) recordSync(userID string, err error) {
	if s.connections == nil {
		return
	}
	s.connections.RecordSync(userID, s.client.Provider(), err)
}

// ParseExternalDate parses a provider date or timestamp and returns it in
// UTC, or nil when no known layout matches.
func ParseExternalDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range externalDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// NormalizeDate converts t to UTC. Stored transaction dates are always UTC.
func NormalizeDate(t time.Time) time.Time {
	return t.UTC()
}

// classifyAmount derives the transaction type and the signed amount. An
// explicit credit/debit indicator wins over the sign of the amount.
func classifyAmount(amount decimal.Decimal, indicator string) (models.TransactionType, decimal.Decimal) {
	switch strings.ToLower(strings.TrimSpace(indicator)) {
	case "credit", "crdt":
		return models.TransactionTypeIncome, amount.Abs()
	case "debit", "dbit":
		return models.TransactionTypeExpense, amount.Abs().Neg()
	}
	return models.TypeForAmount(amount), amount
}

func accountTypeFor(source string) models.AccountType {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "savings", "saving", "deposit":
		return models.AccountTypeSavings
	case "credit_card", "creditcard", "credit":
		return models.AccountTypeCreditCard
	case "cash":
		return models.AccountTypeCash
	case "investment", "brokerage":
		return models.AccountTypeInvestment
	default:
		return models.AccountTypeChecking
	}
}

// externalError maps a bank client failure onto the API error taxonomy.
func externalError(err error) error {
	var apiErr *bankclient.APIError
	if errors.As(err, &apiErr) {
		return apperrors.External(apiErr.StatusCode, firstNonEmpty(apiErr.Detail, apiErr.Message), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.External(http.StatusGatewayTimeout, "deadline exceeded", err)
	}
	return apperrors.Wrap(apperrors.ErrExternalAPI, err)
}

func storeError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.WithMessage(apperrors.ErrConflict, "a concurrent sync created the same record")
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
