package handler

import (
	"net/http"

	"voice-agent-server/internal/apierrors"

	"github.com/gin-gonic/gin"
)

type startCallRequest struct {
	To string `json:"to" binding:"omitempty,e164"`
}

type startCallResponse struct {
	Status   string `json:"status"`
	CallUUID string `json:"call_uuid,omitempty"`
	Message  string `json:"message,omitempty"`
}

// HandleStartCall places an outbound call to the number in the request
// body, falling back to the configured default number. Initiation
// failures are reported in the body with status "error" so the dialing
// CLI can print the provider's message.
func (h *Handler) HandleStartCall(c *gin.Context) {
	ctx := c.Request.Context()
	h.logger.Info(ctx, "Start call requested")

	// Every initiation outcome, including a bad request body, is reported
	// as a 200 with a status field so callers handle one response shape.
	var req startCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, startCallResponse{Status: "error", Message: apierrors.ValidationMessage(err)})
			return
		}
	}

	callUUID, err := h.voiceProcessor.StartOutboundCall(ctx, req.To)
	if err != nil {
		c.JSON(http.StatusOK, startCallResponse{Status: "error", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, startCallResponse{Status: "success", CallUUID: callUUID})
}
