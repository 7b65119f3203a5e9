package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/set-night/llmgate/internal/callback"
	"github.com/set-night/llmgate/internal/config"
	"github.com/set-night/llmgate/internal/domain"
)

func queryFrom(c *gin.Context) callback.Query {
	return callback.Query{
		Signature: c.Query("msg_signature"),
		Timestamp: c.Query("timestamp"),
		Nonce:     c.Query("nonce"),
	}
}

func agentIDFrom(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("agent_id"), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// HandleHandshake answers the platform's URL verification with the decrypted echo string.
func (h *Handler) HandleHandshake(c *gin.Context) {
	agentID, ok := agentIDFrom(c)
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	plain, err := h.verifier.Handshake(agentID, queryFrom(c), c.Query("echostr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, plain)
}

// HandleDelivery processes an encrypted message and writes the sealed reply, if any.
func (h *Handler) HandleDelivery(c *gin.Context) {
	agentID, ok := agentIDFrom(c)
	if !ok {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxCallbackBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	reply, err := h.gateway.HandleDelivery(c.Request.Context(), agentID, queryFrom(c), body)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(reply) == 0 {
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", reply)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReplay):
		return http.StatusOK
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrIntegrity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("callback failed", "path", c.FullPath(), "error", err)
	case status >= http.StatusBadRequest:
		slog.Warn("callback rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatus(status)
}
