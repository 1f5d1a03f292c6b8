package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "fintrek/internal/errors"
	"fintrek/internal/logger"
	"fintrek/internal/models"
	"fintrek/internal/token"
)

// maxSyncErrorLen bounds the stored last_sync_error text.
const maxSyncErrorLen = 500

// bankConnectionService stores user links to external banks. Consent tokens
// are encrypted before they reach the database.
type bankConnectionService struct {
	db     *gorm.DB
	cipher *token.Cipher
	now    func() time.Time
}

// NewBankConnectionService creates a new BankConnectionServicer.
func NewBankConnectionService(db *gorm.DB, cipher *token.Cipher) BankConnectionServicer {
	return &bankConnectionService{db: db, cipher: cipher, now: time.Now}
}

// CreateConnection links the user to a bank.
func (s *bankConnectionService) CreateConnection(userID, provider, bankName, bankBIC, consentToken string) (*models.BankConnection, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	bankName = strings.TrimSpace(bankName)
	if provider == "" || bankName == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "provider and bank name are required")
	}

	var count int64
	if err := s.db.Model(&models.BankConnection{}).
		Where("user_id = ? AND provider = ? AND status = ?", userID, provider, models.BankConnectionActive).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.WithMessage(apperrors.ErrConflict, "an active connection to this provider already exists")
	}

	conn := &models.BankConnection{
		UserID:   userID,
		Provider: provider,
		BankName: bankName,
		BankBIC:  bankBIC,
		Status:   models.BankConnectionActive,
	}
	if consentToken != "" {
		sealed, err := s.cipher.Encrypt(consentToken)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		conn.ConsentToken = sealed
	}

	if err := s.db.Create(conn).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return conn, nil
}

// GetUserConnections lists the user's connections, newest first.
func (s *bankConnectionService) GetUserConnections(userID string) ([]models.BankConnection, error) {
	conns := []models.BankConnection{}
	if err := s.db.Scopes(models.OwnedBy(userID)).Order("created_at DESC").Find(&conns).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return conns, nil
}

// GetConnectionByID retrieves a connection owned by the user.
func (s *bankConnectionService) GetConnectionByID(userID, connectionID string) (*models.BankConnection, error) {
	var conn models.BankConnection
	if err := s.db.Scopes(models.OwnedRecord(connectionID, userID)).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBankConnectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &conn, nil
}

// ConsentToken returns the decrypted consent token of a connection.
func (s *bankConnectionService) ConsentToken(userID, connectionID string) (string, error) {
	conn, err := s.GetConnectionByID(userID, connectionID)
	if err != nil {
		return "", err
	}
	if conn.ConsentToken == "" {
		return "", nil
	}
	plain, err := s.cipher.Decrypt(conn.ConsentToken)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return plain, nil
}

// DeleteConnection marks the connection disconnected and soft-deletes it.
// Accounts and transactions imported through it are kept.
func (s *bankConnectionService) DeleteConnection(userID, connectionID string) error {
	conn, err := s.GetConnectionByID(userID, connectionID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(conn).Updates(map[string]interface{}{
			"status":        models.BankConnectionDisconnected,
			"consent_token": "",
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(conn).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// RecordSync stamps the user's active connections to provider with the
// outcome of a sync. Failures are logged and never propagate.
func (s *bankConnectionService) RecordSync(userID, provider string, syncErr error) {
	updates := map[string]interface{}{"last_sync_error": ""}
	if syncErr != nil {
		msg := syncErr.Error()
		if len(msg) > maxSyncErrorLen {
			msg = msg[:maxSyncErrorLen]
		}
		updates["last_sync_error"] = msg
	} else {
		updates["last_synced_at"] = s.now().UTC()
	}

	if err := s.db.Model(&models.BankConnection{}).
		Where("user_id = ? AND provider = ? AND status = ?", userID, provider, models.BankConnectionActive).
		Updates(updates).Error; err != nil {
		logger.Get().Errorw("failed to record sync outcome", "error", err, "user_id", userID, "provider", provider)
	}
}
