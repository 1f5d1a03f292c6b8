package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintrek/internal/services"
)

// BankConnectionHandler handles the user's links to external banks.
type BankConnectionHandler struct {
	connectionService services.BankConnectionServicer
	auditService      services.AuditServicer
}

// NewBankConnectionHandler creates a new BankConnectionHandler.
func NewBankConnectionHandler(connectionService services.BankConnectionServicer, auditService services.AuditServicer) *BankConnectionHandler {
	return &BankConnectionHandler{connectionService: connectionService, auditService: auditService}
}

// CreateBankConnectionRequest represents the request payload for linking a bank.
type CreateBankConnectionRequest struct {
	Provider     string `json:"provider" binding:"required,max=50"`
	BankName     string `json:"bank_name" binding:"required,max=100"`
	BankBIC      string `json:"bank_bic" binding:"max=20"`
	ConsentToken string `json:"consent_token" binding:"max=4096"`
}

// CreateConnection links the user to a bank. The consent token is stored
// encrypted and never returned.
// @Summary     Connect a bank
// @Description Link the user to a bank; the consent token is stored encrypted
// @Tags        bank-connections
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBankConnectionRequest true "Connection details"
// @Success     201 {object} BankConnectionResponse "Connection created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Already connected"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /bank-connections [post]
func (h *BankConnectionHandler) CreateConnection(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBankConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, bindError(err))
		return
	}

	conn, err := h.connectionService.CreateConnection(userID, req.Provider, req.BankName, req.BankBIC, req.ConsentToken)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionConnectionCreate, "bank_connection", conn.ID, c.ClientIP(),
		map[string]interface{}{"provider": conn.Provider, "bank_name": conn.BankName})

	c.JSON(http.StatusCreated, BankConnectionResponse{BankConnection: conn})
}

// GetUserConnections lists the user's bank connections.
// @Summary     List bank connections
// @Description List the authenticated user's bank connections
// @Tags        bank-connections
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} BankConnectionListResponse "Connections"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /bank-connections [get]
func (h *BankConnectionHandler) GetUserConnections(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	conns, err := h.connectionService.GetUserConnections(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, BankConnectionListResponse{BankConnections: conns})
}

// DeleteConnection disconnects a bank. Imported data is kept.
// @Summary     Disconnect a bank
// @Description Disconnect a bank; imported accounts and transactions are kept
// @Tags        bank-connections
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Connection ID"
// @Success     200 {object} MessageResponse "Connection deleted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Connection not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /bank-connections/{id} [delete]
func (h *BankConnectionHandler) DeleteConnection(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	connectionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.connectionService.DeleteConnection(userID, connectionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionConnectionDelete, "bank_connection", connectionID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, MessageResponse{Message: "Bank connection deleted successfully"})
}
