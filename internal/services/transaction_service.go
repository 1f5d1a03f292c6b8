package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/models"
	"fintrek/internal/pagination"
)

// transactionService handles transaction-related business logic.
type transactionService struct {
	db              *gorm.DB
	accountService  AccountServicer
	categoryService CategoryServicer
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, accountService AccountServicer, categoryService CategoryServicer) TransactionServicer {
	return &transactionService{
		db:              db,
		accountService:  accountService,
		categoryService: categoryService,
	}
}

// CreateTransaction records a manual transaction and adjusts the balance of
// manual accounts.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if in.AccountID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account ID is required")
	}

	amount := in.Amount
	switch in.Type {
	case models.TransactionTypeIncome:
	case models.TransactionTypeExpense:
		amount = amount.Neg()
	default:
		return nil, apperrors.ErrInvalidTransactionType
	}

	status := in.Status
	if status == "" {
		status = models.TransactionStatusCompleted
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = NormalizeDate(date)

	account, err := s.accountService.GetAccountByID(userID, in.AccountID)
	if err != nil {
		return nil, err
	}
	categoryID := in.CategoryID
	if categoryID != nil && *categoryID == "" {
		categoryID = nil
	}
	if err := s.checkCategory(userID, categoryID); err != nil {
		return nil, err
	}
	relatedID, err := s.checkRelatedAccount(userID, account.ID, in.RelatedAccountID)
	if err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		UserID:           userID,
		AccountID:        account.ID,
		RelatedAccountID: relatedID,
		CategoryID:       categoryID,
		Provider:        models.ProviderManual,
		Type:            in.Type,
		Status:          status,
		Amount:          amount,
		Currency:        account.Currency,
		TransactionDate: &date,
		Description:     strings.TrimSpace(in.Description),
		MerchantName:    in.MerchantName,
		Notes:           in.Notes,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if status == models.TransactionStatusCancelled {
			return nil
		}
		return s.accountService.UpdateAccountBalance(tx, account, amount)
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// CreateTransfer moves money between two of the user's accounts. It writes an
// expense on the source and an income on the destination, each pointing at
// the other account, and adjusts both balances in one database transaction.
func (s *transactionService) CreateTransfer(userID string, in TransferInput) (*Transfer, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, apperrors.ErrSameAccountTransfer
	}

	from, err := s.accountService.GetAccountByID(userID, in.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.accountService.GetAccountByID(userID, in.ToAccountID)
	if err != nil {
		return nil, err
	}
	if from.Currency != to.Currency {
		return nil, apperrors.ErrCurrencyMismatch
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	date = NormalizeDate(date)
	description := strings.TrimSpace(in.Description)

	outgoing := &models.Transaction{
		UserID:           userID,
		AccountID:        from.ID,
		RelatedAccountID: &to.ID,
		Provider:         models.ProviderManual,
		Type:             models.TransactionTypeExpense,
		Status:           models.TransactionStatusCompleted,
		Amount:           in.Amount.Neg(),
		Currency:         from.Currency,
		TransactionDate:  &date,
		Description:      description,
	}
	incoming := &models.Transaction{
		UserID:           userID,
		AccountID:        to.ID,
		RelatedAccountID: &from.ID,
		Provider:         models.ProviderManual,
		Type:             models.TransactionTypeIncome,
		Status:           models.TransactionStatusCompleted,
		Amount:           in.Amount,
		Currency:         to.Currency,
		TransactionDate:  &date,
		Description:      description,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkFunds(tx, from, in.Amount); err != nil {
			return err
		}
		if err := tx.Create(outgoing).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Create(incoming).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := s.accountService.UpdateAccountBalance(tx, from, outgoing.Amount); err != nil {
			return err
		}
		return s.accountService.UpdateAccountBalance(tx, to, incoming.Amount)
	})
	if err != nil {
		return nil, err
	}
	return &Transfer{Outgoing: outgoing, Incoming: incoming}, nil
}

// checkFunds re-reads the source balance under a row lock. Credit cards may
// go negative, and synced balances belong to the bank, so neither is checked.
func checkFunds(tx *gorm.DB, account *models.Account, amount decimal.Decimal) error {
	if account.IsSynced() || account.Type == models.AccountTypeCreditCard {
		return nil
	}
	var current models.Account
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "balance").Where("id = ?", account.ID).First(&current).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if current.Balance.LessThan(amount) {
		return apperrors.ErrInsufficientBalance
	}
	return nil
}

// GetAccountTransactions retrieves a paginated, filtered list of transactions for a specific account.
func (s *transactionService) GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if _, err := s.accountService.GetAccountByID(userID, accountID); err != nil {
		return nil, err
	}
	filter.AccountID = &accountID
	return s.GetUserTransactions(userID, page, filter)
}

// GetUserTransactions retrieves a paginated, filtered list of the user's transactions, newest first.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	query := applyTransactionFilters(s.db.Model(&models.Transaction{}).Scopes(models.OwnedBy(userID)), filter)
	result, err := pagination.Find[models.Transaction](query, page, "transaction_date DESC", "created_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.AccountID != nil {
		q = q.Where("account_id = ?", *f.AccountID)
	}
	if f.FromDate != nil {
		q = q.Where("transaction_date >= ?", NormalizeDate(*f.FromDate))
	}
	if f.ToDate != nil {
		q = q.Where("transaction_date <= ?", NormalizeDate(*f.ToDate))
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Scopes(models.OwnedRecord(transactionID, userID)).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// UpdateTransaction patches descriptive fields. Amount and account are fixed
// once recorded; cancelling or reinstating a transaction adjusts the balance.
func (s *transactionService) UpdateTransaction(userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error) {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if fields.CategoryID != nil {
		if *fields.CategoryID == "" {
			updates["category_id"] = nil
		} else {
			if err := s.checkCategory(userID, fields.CategoryID); err != nil {
				return nil, err
			}
			updates["category_id"] = *fields.CategoryID
		}
	}
	if fields.Description != nil {
		updates["description"] = strings.TrimSpace(*fields.Description)
	}
	if fields.MerchantName != nil {
		updates["merchant_name"] = *fields.MerchantName
	}
	if fields.Notes != nil {
		updates["notes"] = *fields.Notes
	}
	if fields.Date != nil {
		updates["transaction_date"] = NormalizeDate(*fields.Date)
	}

	balanceDelta := decimal.Zero
	if fields.Status != nil && *fields.Status != transaction.Status {
		updates["status"] = *fields.Status
		wasCancelled := transaction.Status == models.TransactionStatusCancelled
		nowCancelled := *fields.Status == models.TransactionStatusCancelled
		switch {
		case nowCancelled && !wasCancelled:
			balanceDelta = transaction.Amount.Neg()
		case wasCancelled && !nowCancelled:
			balanceDelta = transaction.Amount
		}
	}

	if len(updates) == 0 {
		return transaction, nil
	}

	account, err := s.accountService.GetAccountByID(userID, transaction.AccountID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(transaction).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.accountService.UpdateAccountBalance(tx, account, balanceDelta)
	})
	if err != nil {
		return nil, err
	}

	return s.GetTransactionByID(userID, transactionID)
}

// DeleteTransaction soft-deletes a transaction and reverses its effect on
// the account balance.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return err
	}

	account, err := s.accountService.GetAccountByID(userID, transaction.AccountID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if transaction.Status == models.TransactionStatusCancelled {
			return nil
		}
		return s.accountService.UpdateAccountBalance(tx, account, transaction.Amount.Neg())
	})
}

// checkRelatedAccount verifies the counterpart account belongs to the user.
// An empty id means no counterpart.
func (s *transactionService) checkRelatedAccount(userID, accountID string, relatedID *string) (*string, error) {
	if relatedID == nil || *relatedID == "" {
		return nil, nil
	}
	if *relatedID == accountID {
		return nil, apperrors.ErrSameAccountTransfer
	}
	related, err := s.accountService.GetAccountByID(userID, *relatedID)
	if err != nil {
		return nil, err
	}
	return &related.ID, nil
}

// checkCategory verifies the category is visible to the user.
func (s *transactionService) checkCategory(userID string, categoryID *string) error {
	if categoryID == nil || *categoryID == "" {
		return nil
	}
	_, err := s.categoryService.GetCategoryByID(userID, *categoryID)
	return err
}
