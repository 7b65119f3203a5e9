package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/set-night/llmgate/internal/callback"
)

type Handshaker interface {
	Handshake(agentID int64, q callback.Query, echo string) (string, error)
}

type Deliverer interface {
	HandleDelivery(ctx context.Context, routeAgentID int64, q callback.Query, body []byte) ([]byte, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of the HTTP routes.
type Handler struct {
	verifier Handshaker
	gateway  Deliverer
	store    Pinger
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Verifier Handshaker
	Gateway  Deliverer
	Store    Pinger
}

func New(deps Deps) *Handler {
	return &Handler{
		verifier: deps.Verifier,
		gateway:  deps.Gateway,
		store:    deps.Store,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/callback/:agent_id", h.HandleHandshake)
	r.POST("/callback/:agent_id", h.HandleDelivery)
	r.GET("/healthz", h.HandleHealth)
}
