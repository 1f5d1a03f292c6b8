package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeChecking   AccountType = "checking"
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCash       AccountType = "cash"
	AccountTypeCreditCard AccountType = "credit_card"
	AccountTypeInvestment AccountType = "investment"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// ProviderManual marks rows entered by the user rather than synced.
const ProviderManual = "manual"

// Account represents a financial account, either manual or synced from a bank.
// (user_id, external_id) is unique; manual accounts leave external_id NULL.
type Account struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;uniqueIndex:idx_accounts_user_external,priority:1" json:"user_id"`
	ExternalID    *string         `gorm:"uniqueIndex:idx_accounts_user_external,priority:2" json:"external_id,omitempty"`
	Provider      string          `gorm:"not null;default:'manual'" json:"provider"`
	Name          string          `gorm:"not null" json:"name"`
	Type          AccountType     `gorm:"not null" json:"type"`
	Description   string          `json:"description"`
	AccountNumber string          `json:"account_number,omitempty"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"balance" swaggertype:"string"`
	Currency      string          `gorm:"not null;default:'RUB'" json:"currency"`
	Status        AccountStatus   `gorm:"not null;default:'active'" json:"status"`

	Transactions []Transaction `gorm:"foreignKey:AccountID" json:"transactions,omitempty"`
}

// BeforeCreate fills defaults the database would otherwise apply, so the
// in-memory struct matches the stored row.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if err := a.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if a.Provider == "" {
		a.Provider = ProviderManual
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	if a.Currency == "" {
		a.Currency = "RUB"
	}
	return nil
}

// IsSynced reports whether the account mirrors an external bank account.
func (a *Account) IsSynced() bool {
	return a.ExternalID != nil
}
