package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/services"
)

type mockSyncService struct {
	importAccountsFn     func(ctx context.Context, userID string) (*services.SyncResult, error)
	importTransactionsFn func(ctx context.Context, userID, accountID string, from, to *time.Time) (*services.SyncResult, error)
}

func (m *mockSyncService) ImportAccounts(ctx context.Context, userID string) (*services.SyncResult, error) {
	if m.importAccountsFn != nil {
		return m.importAccountsFn(ctx, userID)
	}
	return &services.SyncResult{}, nil
}

func (m *mockSyncService) ImportTransactions(ctx context.Context, userID, accountID string, from, to *time.Time) (*services.SyncResult, error) {
	if m.importTransactionsFn != nil {
		return m.importTransactionsFn(ctx, userID, accountID, from, to)
	}
	return &services.SyncResult{}, nil
}

var _ services.SyncServicer = (*mockSyncService)(nil)

func setupSyncRouter(handler *SyncHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/vbank/sync-accounts", handler.SyncAccounts)
	auth.POST("/vbank/sync-transactions", handler.SyncTransactions)
	return r
}

func TestSyncHandler_SyncAccounts(t *testing.T) {
	t.Run("returns counts and audits", func(t *testing.T) {
		audit := &mockAuditService{}
		svc := &mockSyncService{
			importAccountsFn: func(_ context.Context, userID string) (*services.SyncResult, error) {
				if userID != testUserID {
					t.Errorf("expected user %s, got %s", testUserID, userID)
				}
				return &services.SyncResult{Created: 2, Updated: 1}, nil
			},
		}
		r := setupSyncRouter(NewSyncHandler(svc, audit))

		rec := doRequest(r, "POST", "/vbank/sync-accounts", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)["result"].(map[string]interface{})
		if result["created"] != float64(2) || result["updated"] != float64(1) {
			t.Errorf("unexpected result: %v", result)
		}
		if audit.lastAction() != services.AuditActionSyncAccounts {
			t.Errorf("expected sync audit, got %q", audit.lastAction())
		}
		if audit.entries[0].changes["created"] != 2 {
			t.Errorf("expected counts in audit, got %v", audit.entries[0].changes)
		}
	})

	t.Run("surfaces upstream status", func(t *testing.T) {
		svc := &mockSyncService{
			importAccountsFn: func(context.Context, string) (*services.SyncResult, error) {
				return nil, apperrors.External(http.StatusServiceUnavailable, "bank maintenance", errors.New("503"))
			},
		}
		r := setupSyncRouter(NewSyncHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/vbank/sync-accounts", "")

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		assertErrorCode(t, result, "EXTERNAL_API_ERROR")
		if _, ok := result["error"].(map[string]interface{})["detail"]; ok {
			t.Error("upstream detail must not be rendered outside debug mode")
		}
	})
}

func TestSyncHandler_SyncTransactions(t *testing.T) {
	t.Run("passes account and range", func(t *testing.T) {
		var gotAccount string
		var gotFrom, gotTo *time.Time
		svc := &mockSyncService{
			importTransactionsFn: func(_ context.Context, _, accountID string, from, to *time.Time) (*services.SyncResult, error) {
				gotAccount, gotFrom, gotTo = accountID, from, to
				return &services.SyncResult{Created: 5, SkippedDates: 1}, nil
			},
		}
		r := setupSyncRouter(NewSyncHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/vbank/sync-transactions?account_id="+testAccountID+"&date_from=2024-01-01&date_to=2024-01-31", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotAccount != testAccountID {
			t.Errorf("expected account %s, got %s", testAccountID, gotAccount)
		}
		if gotFrom == nil || gotTo == nil || gotFrom.Day() != 1 || gotTo.Day() != 31 {
			t.Errorf("unexpected range %v - %v", gotFrom, gotTo)
		}
	})

	t.Run("open range", func(t *testing.T) {
		svc := &mockSyncService{
			importTransactionsFn: func(_ context.Context, _, _ string, from, to *time.Time) (*services.SyncResult, error) {
				if from != nil || to != nil {
					t.Errorf("expected open range, got %v - %v", from, to)
				}
				return &services.SyncResult{}, nil
			},
		}
		r := setupSyncRouter(NewSyncHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/vbank/sync-transactions?account_id="+testAccountID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	bad := []string{
		"/vbank/sync-transactions",
		"/vbank/sync-transactions?account_id=acc-1",
		"/vbank/sync-transactions?account_id=" + testAccountID + "&date_from=1st",
		"/vbank/sync-transactions?account_id=" + testAccountID + "&date_from=2024-02-01&date_to=2024-01-01",
	}
	for _, path := range bad {
		t.Run("rejects "+path, func(t *testing.T) {
			r := setupSyncRouter(NewSyncHandler(&mockSyncService{}, &mockAuditService{}))

			rec := doRequest(r, "POST", path, "")

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
		})
	}
}
