package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fintrek/internal/models"
	"fintrek/internal/pagination"
	"fintrek/internal/token"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateProfile(id string, firstName, lastName *string) (*models.User, error)
}

// AuthServicer defines the contract for registration, login and token refresh.
type AuthServicer interface {
	Register(ctx context.Context, email, password, firstName, lastName string) (*models.User, *token.Pair, error)
	Login(ctx context.Context, email, password string) (*models.User, *token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
}

// AccountInput holds the fields of a manually created account.
type AccountInput struct {
	Name           string
	Type           models.AccountType
	Description    string
	Currency       string
	AccountNumber  string
	InitialBalance decimal.Decimal
}

// AccountUpdateFields holds optional fields for updating an account.
type AccountUpdateFields struct {
	Name          *string
	Description   *string
	AccountNumber *string
	Status        *models.AccountStatus
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(userID string, in AccountInput) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	UpdateAccount(userID, accountID string, fields AccountUpdateFields) (*models.Account, error)
	UpdateAccountBalance(tx *gorm.DB, account *models.Account, delta decimal.Decimal) error
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID string, name string, categoryType models.CategoryType, description, icon, color string, parentID *string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetUserCategoriesByType(userID string, categoryType models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID string, name, description, icon, color string, parentID *string) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// TransactionInput holds the fields of a manually entered transaction.
// Amount is the absolute value; the stored sign follows Type.
// RelatedAccountID links the counterpart account of a transfer and must
// belong to the same user.
type TransactionInput struct {
	AccountID        string
	RelatedAccountID *string
	CategoryID       *string
	Type             models.TransactionType
	Status           models.TransactionStatus
	Amount           decimal.Decimal
	Description      string
	MerchantName     string
	Notes            string
	Date             time.Time
}

// TransferInput moves Amount from one of the user's accounts to another.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Description   string
	Date          time.Time
}

// Transfer is the pair of linked rows a transfer produces.
type Transfer struct {
	Outgoing *models.Transaction `json:"outgoing"`
	Incoming *models.Transaction `json:"incoming"`
}

// TransactionUpdateFields holds optional fields for patching a transaction.
type TransactionUpdateFields struct {
	CategoryID   *string
	Status       *models.TransactionStatus
	Description  *string
	MerchantName *string
	Notes        *string
	Date         *time.Time
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	Status     *models.TransactionStatus
	CategoryID *string
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	AccountID  *string
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error)
	CreateTransfer(userID string, in TransferInput) (*Transfer, error)
	GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
}

// BankConnectionServicer defines the contract for managing links to external banks.
type BankConnectionServicer interface {
	CreateConnection(userID, provider, bankName, bankBIC, consentToken string) (*models.BankConnection, error)
	GetUserConnections(userID string) ([]models.BankConnection, error)
	GetConnectionByID(userID, connectionID string) (*models.BankConnection, error)
	ConsentToken(userID, connectionID string) (string, error)
	DeleteConnection(userID, connectionID string) error
	RecordSync(userID, provider string, syncErr error)
}

// SyncResult summarizes one reconciliation call.
type SyncResult struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	SkippedDates int `json:"skipped_dates"`
}

// SyncServicer defines the contract for importing data from the bank client.
type SyncServicer interface {
	ImportAccounts(ctx context.Context, userID string) (*SyncResult, error)
	ImportTransactions(ctx context.Context, userID, accountID string, from, to *time.Time) (*SyncResult, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
