package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/services"
)

// SyncHandler triggers imports from the bank.
type SyncHandler struct {
	syncService  services.SyncServicer
	auditService services.AuditServicer
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService services.SyncServicer, auditService services.AuditServicer) *SyncHandler {
	return &SyncHandler{syncService: syncService, auditService: auditService}
}

// SyncAccounts imports the bank's accounts for the user.
// @Summary     Sync bank accounts
// @Description Import the bank's accounts for the authenticated user
// @Tags        vbank
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} SyncResponse "Import counters"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     429 {object} ErrorResponse "Too many requests"
// @Failure     502 {object} ErrorResponse "Bank error"
// @Failure     503 {object} ErrorResponse "Bank unavailable"
// @Failure     504 {object} ErrorResponse "Bank timeout"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /vbank/sync-accounts [post]
func (h *SyncHandler) SyncAccounts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.syncService.ImportAccounts(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionSyncAccounts, "account", "", c.ClientIP(), syncChanges(result))

	c.JSON(http.StatusOK, SyncResponse{Result: result})
}

// SyncTransactions imports transactions of one account. Query parameters:
// account_id (required), date_from and date_to (optional).
// @Summary     Sync bank transactions
// @Description Import the transactions of one account from the bank
// @Tags        vbank
// @Produce     json
// @Security    BearerAuth
// @Param       account_id query string true  "Account ID"
// @Param       date_from  query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       date_to    query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Success     200 {object} SyncResponse "Import counters"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     429 {object} ErrorResponse "Too many requests"
// @Failure     502 {object} ErrorResponse "Bank error"
// @Failure     503 {object} ErrorResponse "Bank unavailable"
// @Failure     504 {object} ErrorResponse "Bank timeout"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /vbank/sync-transactions [post]
func (h *SyncHandler) SyncTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	raw := c.Query("account_id")
	if raw == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "account_id is required"))
		return
	}
	accountID, err := parseID(raw, "account_id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, err := parseOptionalTime(c.Query("date_from"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	to, err := parseOptionalTime(c.Query("date_to"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "date_to must not be before date_from"))
		return
	}

	result, err := h.syncService.ImportTransactions(c.Request.Context(), userID, accountID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionSyncTransactions, "account", accountID, c.ClientIP(), syncChanges(result))

	c.JSON(http.StatusOK, SyncResponse{Result: result})
}

func syncChanges(r *services.SyncResult) map[string]interface{} {
	return map[string]interface{}{
		"created":       r.Created,
		"updated":       r.Updated,
		"skipped":       r.Skipped,
		"skipped_dates": r.SkippedDates,
	}
}
