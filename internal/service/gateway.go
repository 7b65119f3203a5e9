package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/llmgate/internal/callback"
	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/provider"
	"github.com/set-night/llmgate/internal/repository"
)

const (
	providerFailureText  = "Something went wrong while getting a reply. Please wait a minute and try again, or contact an administrator."
	unknownAssistantText = "This assistant is not configured yet. Please contact an administrator."
)

// Verifier opens inbound deliveries and seals replies with the credentials of
// the app identified by agentID.
type Verifier interface {
	Open(agentID int64, q callback.Query, body []byte) (*callback.Message, error)
	Reply(agentID int64, user, content string) ([]byte, error)
}

type ProviderClient interface {
	Complete(ctx context.Context, p domain.Provider, req provider.Request) (provider.Response, error)
}

type GatewayConfig struct {
	ProviderTimeout time.Duration
	ContextWindow   int
}

type GatewayDeps struct {
	Verifier      Verifier
	Store         Store
	Catalog       *Catalog
	Guests        *GuestService
	Conversations *ConversationManager
	Billing       *BillingLedger
	Messages      *MessageLog
	Admin         *AdminConsole
	Provider      ProviderClient
	Alerts        AlertSink
}

// Gateway turns one verified delivery into at most one priced provider call.
type Gateway struct {
	GatewayDeps
	cfg GatewayConfig
}

func NewGateway(deps GatewayDeps, cfg GatewayConfig) *Gateway {
	return &Gateway{GatewayDeps: deps, cfg: cfg}
}

// HandleDelivery processes a POSTed callback. A nil reply with a nil error means
// the platform gets an empty 200. routeAgentID selects the app credentials and is
// the assistant key when the message carries none.
func (g *Gateway) HandleDelivery(ctx context.Context, routeAgentID int64, q callback.Query, body []byte) ([]byte, error) {
	msg, err := g.Verifier.Open(routeAgentID, q, body)
	if err != nil {
		// Integrity failures only happen behind a valid signature.
		if errors.Is(err, domain.ErrIntegrity) {
			g.Alerts.Notify(ctx, domain.Event{
				Type:      domain.EventSecurity,
				Detail:    "callback failed integrity check",
				Err:       err,
				CreatedAt: time.Now(),
			})
		}
		return nil, err
	}

	claimed, err := g.Store.ClaimNonce(ctx, q.Nonce, q.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("claim nonce: %w", err)
	}
	if !claimed {
		slog.Info("duplicate callback dropped", "nonce", q.Nonce, "timestamp", q.Timestamp)
		return nil, domain.ErrReplay
	}

	agentID := msg.AgentID
	if agentID == 0 {
		agentID = routeAgentID
	}

	text, providerCalled, err := g.dispatch(ctx, agentID, msg)
	var reply []byte
	if err == nil && text != "" {
		reply, err = g.Verifier.Reply(routeAgentID, msg.FromUserName, text)
	}
	if err != nil {
		if !providerCalled {
			g.releaseNonce(ctx, q)
		}
		return nil, err
	}
	return reply, nil
}

func (g *Gateway) releaseNonce(ctx context.Context, q callback.Query) {
	if err := g.Store.ReleaseNonce(context.WithoutCancel(ctx), q.Nonce, q.Timestamp); err != nil {
		slog.Error("failed to release nonce", "nonce", q.Nonce, "error", err)
	}
}

// dispatch returns the reply text and whether the provider was called.
func (g *Gateway) dispatch(ctx context.Context, agentID int64, msg *callback.Message) (string, bool, error) {
	if msg.IsUserCreated() {
		if msg.UserID == "" {
			return "", false, nil
		}
		_, err := g.Guests.FindOrCreate(ctx, msg.UserID)
		return "", false, err
	}
	if !msg.IsText() {
		slog.Debug("ignoring non-text callback", "msg_type", msg.MsgType, "event", msg.Event)
		return "", false, nil
	}

	guest, err := g.Guests.FindOrCreate(ctx, msg.FromUserName)
	if err != nil {
		return "", false, err
	}

	input, err := Classify(msg.Content)
	if err != nil {
		if text, ok := commandErrorText(err); ok {
			return text, false, nil
		}
		return "", false, err
	}

	switch in := input.(type) {
	case Command:
		text, err := g.Admin.Execute(ctx, guest, agentID, in)
		if err != nil {
			if t, ok := commandErrorText(err); ok {
				return t, false, nil
			}
			return "", false, err
		}
		return text, false, nil
	case ChatMessage:
		return g.chat(ctx, guest, agentID, in.Text)
	default:
		return "", false, fmt.Errorf("unhandled input %T", input)
	}
}

func (g *Gateway) chat(ctx context.Context, guest domain.Guest, agentID int64, text string) (string, bool, error) {
	if strings.TrimSpace(text) == "" {
		return "", false, nil
	}

	route, err := g.Catalog.Lookup(ctx, agentID)
	if errors.Is(err, domain.ErrUnknownAssistant) {
		slog.Warn("message for unconfigured agent", "agent_id", agentID, "guest", guest.Name)
		return unknownAssistantText, false, nil
	}
	if err != nil {
		return "", false, err
	}

	conv, err := g.Conversations.ResolveOrCreate(ctx, guest.ID, route.Assistant.ID, route.Provider.Pricing())
	if err != nil {
		return "", false, err
	}

	history, err := g.Messages.LatestN(ctx, conv.ID, g.cfg.ContextWindow)
	if err != nil {
		return "", false, err
	}
	msgs, promptEstimate := buildContext(route.Assistant, route.Provider, history, text)

	worst := WorstCase(conv.Pricing, promptEstimate, route.Provider.MaxTokens)
	if err := g.Billing.Precheck(guest, worst); err != nil {
		slog.Info("precheck declined", "guest", guest.Name, "credit", guest.Credit.String(), "worst_case", worst.String())
		return fmt.Sprintf("Insufficient credit. Balance: %s, this request may cost up to %s.",
			guest.Credit.StringFixed(4), worst.StringFixed(4)), false, nil
	}

	// From here on the turn runs to completion regardless of the inbound connection.
	detached := context.WithoutCancel(ctx)
	pctx, cancel := context.WithTimeout(detached, g.cfg.ProviderTimeout)
	resp, err := g.Provider.Complete(pctx, route.Provider, provider.Request{
		Messages:  msgs,
		MaxTokens: completionBudget(route.Provider, promptEstimate),
	})
	cancel()
	if err != nil {
		g.providerFailed(detached, guest, conv, text, err)
		return providerFailureText, true, nil
	}

	cost := Cost(conv.Pricing, resp.PromptTokens, resp.CompletionTokens)

	var settlement Settlement
	err = g.Store.InTx(detached, func(q repository.Querier) error {
		if _, err := g.Messages.Append(detached, q, domain.NewMessage{
			ConversationID: conv.ID,
			Content:        text,
			Type:           domain.MessageUser,
			ContentType:    domain.ContentText,
		}); err != nil {
			return err
		}
		if _, err := g.Messages.Append(detached, q, domain.NewMessage{
			ConversationID:   conv.ID,
			Content:          resp.Text,
			Cost:             cost,
			Type:             domain.MessageAssistant,
			ContentType:      domain.ContentText,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
		}); err != nil {
			return err
		}

		var err error
		settlement, err = g.Billing.Commit(detached, q, guest.ID, cost)
		if err != nil {
			return err
		}
		return q.TouchConversation(detached, conv.ID)
	})
	if err != nil {
		return "", true, fmt.Errorf("record turn: %w", err)
	}

	slog.Info("turn billed",
		"guest", guest.Name,
		"conversation_id", conv.ID,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"cost", cost.String(),
		"balance", settlement.NewBalance.String(),
	)

	if settlement.Overdraft() {
		g.Alerts.Notify(detached, domain.Event{
			Type:      domain.EventOverdraft,
			GuestName: guest.Name,
			Delta:     settlement.Delta,
			Detail:    fmt.Sprintf("cost %s exceeded balance %s", cost.String(), settlement.Charged.String()),
			CreatedAt: time.Now(),
		})
	}

	return resp.Text, true, nil
}

// providerFailed records the user's turn at zero cost and raises an alert.
func (g *Gateway) providerFailed(ctx context.Context, guest domain.Guest, conv domain.Conversation, text string, err error) {
	slog.Error("provider call failed", "guest", guest.Name, "conversation_id", conv.ID, "error", err)

	g.Alerts.Notify(ctx, domain.Event{
		Type:      domain.EventError,
		GuestName: guest.Name,
		Detail:    "provider call failed",
		Err:       err,
		CreatedAt: time.Now(),
	})

	auditErr := g.Store.InTx(ctx, func(q repository.Querier) error {
		_, err := g.Messages.Append(ctx, q, domain.NewMessage{
			ConversationID: conv.ID,
			Content:        text,
			Type:           domain.MessageUser,
			ContentType:    domain.ContentText,
		})
		return err
	})
	if auditErr != nil {
		slog.Error("failed to log user message after provider failure", "conversation_id", conv.ID, "error", auditErr)
	}
}
