package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"fintrek/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TestPassword is the plaintext password of every fixture user.
const TestPassword = "Password123!"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Test",
		LastName:     "User",
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates a manual checking account with the given balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string, balance string) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", nextID()),
		Type:     models.AccountTypeChecking,
		Balance:  decimal.RequireFromString(balance),
		Currency: "RUB",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestSyncedAccount creates an account mirroring the given external id.
func CreateTestSyncedAccount(t *testing.T, db *gorm.DB, userID, externalID string) *models.Account {
	t.Helper()

	ext := externalID
	account := &models.Account{
		UserID:     userID,
		ExternalID: &ext,
		Provider:   "vbank",
		Name:       fmt.Sprintf("Synced Account %d", nextID()),
		Type:       models.AccountTypeChecking,
		Balance:    decimal.Zero,
		Currency:   "RUB",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test synced account: %v", err)
	}
	return account
}

// CreateTestCategory creates a user-owned category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	owner := userID
	category := &models.Category{
		UserID: &owner,
		Name:   fmt.Sprintf("Test Category %d", nextID()),
		Type:   categoryType,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestSystemCategory creates an ownerless category visible to everyone.
func CreateTestSystemCategory(t *testing.T, db *gorm.DB, categoryType models.CategoryType) *models.Category {
	t.Helper()

	category := &models.Category{
		IsSystem: true,
		Name:     fmt.Sprintf("System Category %d", nextID()),
		Type:     categoryType,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test system category: %v", err)
	}
	return category
}

// CreateTestTransaction creates a completed transaction dated now.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, accountID string, txType models.TransactionType, amount string) *models.Transaction {
	t.Helper()

	now := time.Now().UTC()
	tx := &models.Transaction{
		UserID:          userID,
		AccountID:       accountID,
		Type:            txType,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: &now,
		Description:     fmt.Sprintf("Test Transaction %d", nextID()),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}
