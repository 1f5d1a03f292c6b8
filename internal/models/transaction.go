package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction represents a financial transaction in the system.
// Amount is signed: negative values are outflows. TransactionDate is stored
// in UTC and may be NULL when a provider sent an unparsable date.
type Transaction struct {
	Base
	UserID           string            `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_user_external,priority:1" json:"user_id"`
	AccountID        string            `gorm:"type:uuid;not null;index" json:"account_id"`
	CategoryID       *string           `gorm:"type:uuid" json:"category_id,omitempty"`
	RelatedAccountID *string           `gorm:"type:uuid" json:"related_account_id,omitempty"`
	ExternalID       *string           `gorm:"uniqueIndex:idx_transactions_user_external,priority:2" json:"external_id,omitempty"`
	Provider         string            `gorm:"not null;default:'manual'" json:"provider"`
	Type             TransactionType   `gorm:"not null" json:"type"`
	Status           TransactionStatus `gorm:"not null;default:'completed'" json:"status"`
	Amount           decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"amount" swaggertype:"string"`
	Currency         string            `gorm:"not null;default:'RUB'" json:"currency"`
	TransactionDate  *time.Time        `gorm:"index" json:"transaction_date"`
	Description      string            `json:"description"`
	MerchantName     string            `json:"merchant_name,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	CategoryGuess    string            `json:"category_guess,omitempty"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// BeforeCreate fills defaults and normalizes the transaction date to UTC.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if err := t.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if t.Provider == "" {
		t.Provider = ProviderManual
	}
	if t.Status == "" {
		t.Status = TransactionStatusCompleted
	}
	if t.Currency == "" {
		t.Currency = "RUB"
	}
	if t.TransactionDate != nil {
		utc := t.TransactionDate.UTC()
		t.TransactionDate = &utc
	}
	return nil
}

// TypeForAmount classifies a signed amount: zero and positive are income.
func TypeForAmount(amount decimal.Decimal) TransactionType {
	if amount.IsNegative() {
		return TransactionTypeExpense
	}
	return TransactionTypeIncome
}
