package handlers

import (
	"fintrek/internal/models"
	"fintrek/internal/services"
	"fintrek/internal/token"
)

// ErrorDetail is the body of an error response.
type ErrorDetail struct {
	Code    string `json:"code" example:"INVALID_INPUT"`
	Message string `json:"message" example:"Invalid input"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}

// TokensResponse carries a freshly issued token pair.
type TokensResponse struct {
	Tokens *token.Pair `json:"tokens"`
}

// ProfileResponse wraps the user's profile.
type ProfileResponse struct {
	User UserResponse `json:"user"`
}

// AccountResponse wraps a single account.
type AccountResponse struct {
	Account *models.Account `json:"account"`
}

// TransactionResponse wraps a single transaction.
type TransactionResponse struct {
	Transaction *models.Transaction `json:"transaction"`
}

// TransferResponse wraps both legs of a transfer.
type TransferResponse struct {
	Transfer *services.Transfer `json:"transfer"`
}

// CategoryResponse wraps a single category.
type CategoryResponse struct {
	Category *models.Category `json:"category"`
}

// BankConnectionResponse wraps a single bank connection.
type BankConnectionResponse struct {
	BankConnection *models.BankConnection `json:"bank_connection"`
}

// BankConnectionListResponse lists the user's bank connections.
type BankConnectionListResponse struct {
	BankConnections []models.BankConnection `json:"bank_connections"`
}

// SyncResponse reports the counters of one import.
type SyncResponse struct {
	Result *services.SyncResult `json:"result"`
}
