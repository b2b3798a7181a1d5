package http

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/hexlane/authgate/core"
	"github.com/hexlane/authgate/internal/slogx"
	"github.com/hexlane/authgate/ports"
	"github.com/hexlane/authgate/service"
)

// SessionHandlers contains HTTP handlers for session endpoints
type SessionHandlers struct {
	sessions *service.SessionManager
	audit    *service.AuditService
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(sessions *service.SessionManager, audit *service.AuditService) *SessionHandlers {
	return &SessionHandlers{
		sessions: sessions,
		audit:    audit,
	}
}

type sessionResponse struct {
	State      core.State `json:"state"`
	Address    string     `json:"address,omitempty"`
	Registered bool       `json:"registered"`
	Username   string     `json:"username,omitempty"`
	Role       string     `json:"role,omitempty"`
	Balance    string     `json:"balance"`
	OTP        string     `json:"otp,omitempty"`
}

func toSessionResponse(s core.Session) sessionResponse {
	resp := sessionResponse{
		State:      s.State,
		Registered: s.Registered,
		Username:   s.Username,
		Balance:    s.Balance.String(),
	}
	if s.State.Connected() {
		resp.Address = s.Address.Hex()
	}
	if s.Registered {
		resp.Role = s.Role.String()
	}
	// The code is exposed once, on the transition into awaiting_otp, so the
	// UI can display it.
	if s.State == core.StateAwaitingOTP {
		resp.OTP = s.OTP
	}
	return resp
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindUsernameTooShort:
		return http.StatusBadRequest
	case core.KindSignatureInvalid, core.KindInvalidOTP:
		return http.StatusUnauthorized
	case core.KindUserRejected:
		return http.StatusForbidden
	case core.KindAlreadyRegistered, core.KindNotRegistered, core.KindOperationInProgress:
		return http.StatusConflict
	case core.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case core.KindTransactionReverted, core.KindNetworkError:
		return http.StatusBadGateway
	case core.KindWalletUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		slogx.FromContext(c.Request.Context()).Error("request failed", "kind", kind, "error", err)
	}
	c.JSON(status, gin.H{"kind": kind, "error": err.Error()})
}

// Connect handles the wallet connect request
func (h *SessionHandlers) Connect(c *gin.Context) {
	session, err := h.sessions.Connect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// Register handles the on-chain registration request
func (h *SessionHandlers) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session, err := h.sessions.Register(c.Request.Context(), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// Login handles the signature login request
func (h *SessionHandlers) Login(c *gin.Context) {
	session, err := h.sessions.Login(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// SubmitOTP handles the confirmation code submission
func (h *SessionHandlers) SubmitOTP(c *gin.Context) {
	var req struct {
		OTP string `json:"otp" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session, err := h.sessions.SubmitOTP(c.Request.Context(), req.OTP)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// CancelOTP abandons a pending confirmation
func (h *SessionHandlers) CancelOTP(c *gin.Context) {
	session, err := h.sessions.CancelOTP(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// Disconnect handles session teardown
func (h *SessionHandlers) Disconnect(c *gin.Context) {
	session, err := h.sessions.Disconnect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// Restore reconnects using the persisted logged-in marker
func (h *SessionHandlers) Restore(c *gin.Context) {
	session, restored, err := h.sessions.Restore(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored, "session": toSessionResponse(session)})
}

// Session returns the current session snapshot
func (h *SessionHandlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

type auditEntryResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor"`
	Username    string `json:"username,omitempty"`
	Role        string `json:"role,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

func toAuditResponse(entries []core.AuditEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		resp := auditEntryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Actor:       e.Actor.Hex(),
			Message:     e.Message,
			Timestamp:   e.Timestamp.Unix(),
			BlockNumber: e.BlockNumber,
			TxHash:      e.TxHash.Hex(),
		}
		switch e.Kind {
		case core.AuditLoginAttempt:
			success := e.Success
			resp.Success = &success
		case core.AuditUserRegistered:
			resp.Username = e.Username
			resp.Role = e.Role.String()
		case core.AuditRoleChanged:
			resp.Role = e.Role.String()
		}
		out[i] = resp
	}
	return out
}

// AuditLogs queries the contract event streams
func (h *SessionHandlers) AuditLogs(c *gin.Context) {
	var addr *common.Address
	if raw := c.Query("address"); raw != "" {
		if !common.IsHexAddress(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
			return
		}
		a := common.HexToAddress(raw)
		addr = &a
	}

	var r ports.BlockRange
	var err error
	if raw := c.Query("from"); raw != "" {
		if r.From, err = strconv.ParseUint(raw, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from block"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if r.To, err = strconv.ParseUint(raw, 10, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to block"})
			return
		}
	}

	entries, err := h.audit.Query(c.Request.Context(), addr, r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": toAuditResponse(entries)})
}

// Me returns information about the authenticated user
func (h *SessionHandlers) Me(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  address,
		"username": c.GetString("username"),
		"role":     c.GetString("role"),
	})
}
