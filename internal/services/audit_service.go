package services

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fintrek/internal/logger"
	"fintrek/internal/models"
)

// Audit actions.
const (
	AuditActionRegister         = "user.register"
	AuditActionLogin            = "user.login"
	AuditActionProfileUpdate    = "user.profile_update"
	AuditActionAccountCreate    = "account.create"
	AuditActionAccountUpdate    = "account.update"
	AuditActionTransactionDel   = "transaction.delete"
	AuditActionTransfer         = "transaction.transfer"
	AuditActionCategoryDelete   = "category.delete"
	AuditActionConnectionCreate = "bank_connection.create"
	AuditActionConnectionDelete = "bank_connection.delete"
	AuditActionSyncAccounts     = "sync.accounts"
	AuditActionSyncTransactions = "sync.transactions"
)

const redacted = "[redacted]"

// Substrings of change keys whose values never reach the audit table.
var sensitiveKeyParts = []string{"password", "token", "secret"}

type auditService struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db, log: logger.Named("audit")}
}

// Log records an audit event. Failures are logged and swallowed; auditing
// never fails the request that triggered it.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]any) {
	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      s.encodeChanges(action, changes),
	}

	if err := s.db.Create(entry).Error; err != nil {
		s.log.Errorw("failed to create audit log entry",
			"error", err,
			"user_id", userID,
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
		)
	}
}

func (s *auditService) encodeChanges(action string, changes map[string]any) string {
	if len(changes) == 0 {
		return ""
	}
	clean := make(map[string]any, len(changes))
	for k, v := range changes {
		if isSensitiveKey(k) {
			v = redacted
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		s.log.Errorw("failed to marshal audit log changes", "error", err, "action", action)
		return "{}"
	}
	return string(data)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
