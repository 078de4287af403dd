package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/pkg/logger"
	"github.com/AnTengye/leaseflow/service"
	"github.com/gin-gonic/gin"
)

// EventsHandler receives signed events from the tenant-facing counterpart.
type EventsHandler struct {
	orch   *service.Orchestrator
	secret string
}

func NewEventsHandler(orch *service.Orchestrator, secret string) *EventsHandler {
	return &EventsHandler{orch: orch, secret: secret}
}

type EventRequest struct {
	Checksum string `json:"checksum" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

type EventContent struct {
	Event      string    `json:"event"`
	ContractID string    `json:"contract_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

var counterpartEvents = map[string]lifecycle.Action{
	"tenant_signed": lifecycle.ActionTenantSign,
	"finalized":     lifecycle.ActionFinalize,
}

// Checksum returns the hex HMAC-SHA256 of content under secret.
func Checksum(secret, content string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *EventsHandler) verify(checksum, content string) bool {
	if h.secret == "" {
		return false
	}
	expected, err := hex.DecodeString(checksum)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(content))
	return hmac.Equal(expected, mac.Sum(nil))
}

// HandleCounterpart applies a tenant_signed or finalized event
func (h *EventsHandler) HandleCounterpart(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	if !h.verify(req.Checksum, req.Content) {
		logger.Warn(c.Request.Context(), "counterpart event rejected", "reason", "bad checksum")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid checksum", Code: "unauthorized"})
		return
	}

	var content EventContent
	if err := json.Unmarshal([]byte(req.Content), &content); err != nil {
		badRequest(c, "Invalid content format")
		return
	}
	action, ok := counterpartEvents[content.Event]
	if !ok || content.ContractID == "" {
		badRequest(c, "Unknown event")
		return
	}

	ctx := logger.WithContractID(c.Request.Context(), content.ContractID)
	contract, err := h.orch.Receive(ctx, content.ContractID, action)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(ctx, "counterpart event applied",
		"event", content.Event,
		"occurred_at", content.OccurredAt,
		"status", contract.Status,
	)
	c.JSON(http.StatusOK, gin.H{"message": "Event received", "status": contract.Status})
}
