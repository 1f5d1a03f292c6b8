package services

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"fintrek/internal/models"
	"fintrek/internal/testutil"
	"fintrek/internal/token"
)

func newTestConnectionService(t *testing.T, db *gorm.DB) BankConnectionServicer {
	t.Helper()
	cipher, err := token.NewCipher("services-test-encryption-key-0123456789")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return NewBankConnectionService(db, cipher)
}

func TestCreateConnection(t *testing.T) {
	t.Run("consent_token_encrypted_at_rest", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestConnectionService(t, db)
		user := testutil.CreateTestUser(t, db)

		conn, err := svc.CreateConnection(user.ID, "VBank", "Virtual Bank", "044525000", "consent-abc")
		testutil.AssertNoError(t, err)

		if conn.Provider != "vbank" {
			t.Errorf("expected lower-cased provider, got %s", conn.Provider)
		}

		var stored models.BankConnection
		db.Where("id = ?", conn.ID).First(&stored)
		if stored.ConsentToken == "" || strings.Contains(stored.ConsentToken, "consent-abc") {
			t.Errorf("expected ciphertext at rest, got %q", stored.ConsentToken)
		}

		plain, err := svc.ConsentToken(user.ID, conn.ID)
		testutil.AssertNoError(t, err)
		if plain != "consent-abc" {
			t.Errorf("expected decrypted consent-abc, got %q", plain)
		}
	})

	t.Run("one_active_connection_per_provider", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestConnectionService(t, db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateConnection(user.ID, "vbank", "Virtual Bank", "", "")
		testutil.AssertNoError(t, err)

		_, err = svc.CreateConnection(user.ID, "vbank", "Virtual Bank", "", "")
		testutil.AssertAppError(t, err, "CONFLICT")
	})

	t.Run("missing_fields", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := newTestConnectionService(t, db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateConnection(user.ID, "vbank", " ", "", "")
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestDeleteConnection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestConnectionService(t, db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	conn, err := svc.CreateConnection(user.ID, "vbank", "Virtual Bank", "", "secret")
	testutil.AssertNoError(t, err)

	err = svc.DeleteConnection(other.ID, conn.ID)
	testutil.AssertAppError(t, err, "BANK_CONNECTION_NOT_FOUND")

	testutil.AssertNoError(t, svc.DeleteConnection(user.ID, conn.ID))

	conns, err := svc.GetUserConnections(user.ID)
	testutil.AssertNoError(t, err)
	if len(conns) != 0 {
		t.Errorf("expected no connections, got %d", len(conns))
	}

	var stored models.BankConnection
	db.Unscoped().Where("id = ?", conn.ID).First(&stored)
	if stored.Status != models.BankConnectionDisconnected || stored.ConsentToken != "" {
		t.Errorf("expected disconnected row without consent, got %+v", stored)
	}

	// A new connection to the same provider is allowed afterwards.
	_, err = svc.CreateConnection(user.ID, "vbank", "Virtual Bank", "", "")
	testutil.AssertNoError(t, err)
}

func TestRecordSync(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := newTestConnectionService(t, db)
	user := testutil.CreateTestUser(t, db)

	conn, err := svc.CreateConnection(user.ID, "vbank", "Virtual Bank", "", "")
	testutil.AssertNoError(t, err)

	svc.RecordSync(user.ID, "vbank", errors.New("bank unavailable"))
	got, _ := svc.GetConnectionByID(user.ID, conn.ID)
	if got.LastSyncError != "bank unavailable" || got.LastSyncedAt != nil {
		t.Errorf("expected failure recorded, got %+v", got)
	}

	svc.RecordSync(user.ID, "vbank", nil)
	got, _ = svc.GetConnectionByID(user.ID, conn.ID)
	if got.LastSyncError != "" || got.LastSyncedAt == nil {
		t.Errorf("expected success recorded, got %+v", got)
	}
}
