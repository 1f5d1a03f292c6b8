package services

import (
	"encoding/json"
	"strings"
	"testing"

	"fintrek/internal/models"
	"fintrek/internal/testutil"
)

func TestAuditLog(t *testing.T) {
	t.Run("records_entry", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		NewAuditService(db).Log(user.ID, AuditActionConnectionCreate, "bank_connection", "conn-1", "10.0.0.1",
			map[string]any{"provider": "vbank", "consent_token": "plain-secret", "Password": "x"})

		var entry models.AuditLog
		if err := db.Where("user_id = ?", user.ID).First(&entry).Error; err != nil {
			t.Fatalf("expected audit entry: %v", err)
		}
		if entry.Action != AuditActionConnectionCreate || entry.IPAddress != "10.0.0.1" {
			t.Errorf("unexpected entry: %+v", entry)
		}
		if strings.Contains(entry.Changes, "plain-secret") {
			t.Fatalf("secret leaked into audit log: %s", entry.Changes)
		}

		var changes map[string]string
		if err := json.Unmarshal([]byte(entry.Changes), &changes); err != nil {
			t.Fatalf("changes not JSON: %v", err)
		}
		if changes["provider"] != "vbank" || changes["consent_token"] != redacted || changes["Password"] != redacted {
			t.Errorf("unexpected changes: %v", changes)
		}
	})

	t.Run("nil_changes_stored_empty", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		NewAuditService(db).Log(user.ID, AuditActionLogin, "user", user.ID, "", nil)

		var entry models.AuditLog
		if err := db.Where("user_id = ?", user.ID).First(&entry).Error; err != nil {
			t.Fatalf("expected audit entry: %v", err)
		}
		if entry.Changes != "" {
			t.Errorf("expected empty changes, got %q", entry.Changes)
		}
	})

	t.Run("store_failure_swallowed", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		testutil.TeardownTestDB(t, db)

		NewAuditService(db).Log("u", AuditActionLogin, "user", "u", "", nil)
	})
}
