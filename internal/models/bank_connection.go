package models

import "time"

// BankConnectionStatus is the state of a user's link to a bank.
type BankConnectionStatus string

const (
	BankConnectionActive       BankConnectionStatus = "active"
	BankConnectionDisconnected BankConnectionStatus = "disconnected"
)

// BankConnection links a user to an external bank. ConsentToken holds
// ciphertext only.
type BankConnection struct {
	Base
	UserID        string               `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider      string               `gorm:"not null" json:"provider"`
	BankName      string               `gorm:"not null" json:"bank_name"`
	BankBIC       string               `json:"bank_bic,omitempty"`
	Status        BankConnectionStatus `gorm:"not null;default:'active'" json:"status"`
	ConsentToken  string               `json:"-"`
	LastSyncedAt  *time.Time           `json:"last_synced_at,omitempty"`
	LastSyncError string               `json:"last_sync_error,omitempty"`
}
