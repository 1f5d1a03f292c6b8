package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/models"
	"fintrek/internal/pagination"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount creates a manual account. A positive initial balance is
// recorded as an income transaction in the same database transaction.
func (s *accountService) CreateAccount(userID string, in AccountInput) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if in.InitialBalance.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "initial balance cannot be negative")
	}

	accountType := in.Type
	if accountType == "" {
		accountType = models.AccountTypeChecking
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "RUB"
	}

	account := &models.Account{
		UserID:        userID,
		Provider:      models.ProviderManual,
		Name:          name,
		Type:          accountType,
		Description:   in.Description,
		AccountNumber: in.AccountNumber,
		Balance:       in.InitialBalance,
		Currency:      currency,
		Status:        models.AccountStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if in.InitialBalance.IsPositive() {
			now := time.Now().UTC()
			transaction := &models.Transaction{
				UserID:          userID,
				AccountID:       account.ID,
				Type:            models.TransactionTypeIncome,
				Amount:          in.InitialBalance,
				Currency:        currency,
				Description:     "Initial balance",
				TransactionDate: &now,
			}
			if err := tx.Create(transaction).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	query := s.db.Model(&models.Account{}).Scopes(models.OwnedBy(userID))
	result, err := pagination.Find[models.Account](query, page, "created_at ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Scopes(models.OwnedRecord(accountID, userID)).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateAccount applies the provided fields. Balance and currency of synced
// accounts belong to the bank and are not editable here.
func (s *accountService) UpdateAccount(userID, accountID string, fields AccountUpdateFields) (*models.Account, error) {
	account, err := s.GetAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if fields.Name != nil && strings.TrimSpace(*fields.Name) != "" {
		updates["name"] = strings.TrimSpace(*fields.Name)
	}
	if fields.Description != nil {
		updates["description"] = *fields.Description
	}
	if fields.AccountNumber != nil {
		updates["account_number"] = *fields.AccountNumber
	}
	if fields.Status != nil {
		switch *fields.Status {
		case models.AccountStatusActive, models.AccountStatusClosed:
			updates["status"] = *fields.Status
		default:
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "unsupported account status")
		}
	}

	if len(updates) > 0 {
		if err := s.db.Model(account).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		// Reload to get fresh data
		if err := s.db.Where("id = ?", account.ID).First(account).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return account, nil
}

// UpdateAccountBalance adds a signed delta to a manual account's balance.
// Synced accounts take their balance from the bank, so the call is a no-op
// for them.
func (s *accountService) UpdateAccountBalance(tx *gorm.DB, account *models.Account, delta decimal.Decimal) error {
	if account.IsSynced() || delta.IsZero() {
		return nil
	}

	if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.Balance = account.Balance.Add(delta)
	return nil
}
