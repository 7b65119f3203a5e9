package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/llmgate/internal/domain"
)

// AdminConsole executes classified commands. Commands never touch billing.
type AdminConsole struct {
	store         Store
	catalog       *Catalog
	billing       *BillingLedger
	conversations *ConversationManager
	messages      *MessageLog
	alerts        AlertSink
}

func NewAdminConsole(store Store, catalog *Catalog, billing *BillingLedger, conversations *ConversationManager, messages *MessageLog, alerts AlertSink) *AdminConsole {
	return &AdminConsole{
		store:         store,
		catalog:       catalog,
		billing:       billing,
		conversations: conversations,
		messages:      messages,
		alerts:        alerts,
	}
}

// Execute runs cmd on behalf of caller and returns the text to send back.
func (a *AdminConsole) Execute(ctx context.Context, caller domain.Guest, agentID int64, cmd Command) (string, error) {
	if cmd.Kind.AdminOnly() && !caller.IsAdmin {
		slog.Warn("admin command denied", "guest", caller.Name, "command", cmd.Kind)
		return "", domain.ErrPermissionDenied
	}

	switch cmd.Kind {
	case CommandListGuests:
		return a.listGuests(ctx)
	case CommandTopUp:
		return a.topUp(ctx, caller, cmd)
	case CommandSetAdmin:
		return a.setAdmin(ctx, caller, cmd)
	case CommandBalance:
		return fmt.Sprintf("Balance: %s", caller.Credit.StringFixed(4)), nil
	case CommandUsage:
		return a.usage(ctx, caller, agentID)
	case CommandNewConversation:
		return a.newConversation(ctx, caller, agentID)
	default:
		return "", domain.ErrInvalidCommand
	}
}

func (a *AdminConsole) listGuests(ctx context.Context) (string, error) {
	guests, err := a.store.ListGuests(ctx)
	if err != nil {
		return "", fmt.Errorf("list guests: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Guests: %d", len(guests))
	for _, g := range guests {
		fmt.Fprintf(&sb, "\n%s  %s", g.Name, g.Credit.StringFixed(4))
		if g.IsAdmin {
			sb.WriteString("  [admin]")
		}
	}
	return sb.String(), nil
}

func (a *AdminConsole) topUp(ctx context.Context, caller domain.Guest, cmd Command) (string, error) {
	balance, err := a.billing.TopUp(ctx, cmd.Target, cmd.Amount)
	if err != nil {
		return "", err
	}

	slog.Info("credit topped up", "by", caller.Name, "guest", cmd.Target, "amount", cmd.Amount.String())
	a.alerts.Notify(ctx, domain.Event{
		Type:      domain.EventTopUp,
		GuestName: cmd.Target,
		Delta:     cmd.Amount,
		Detail:    "by " + caller.Name,
		CreatedAt: time.Now(),
	})
	return fmt.Sprintf("Topped up %s for %s. Balance: %s", cmd.Amount.String(), cmd.Target, balance.StringFixed(4)), nil
}

func (a *AdminConsole) setAdmin(ctx context.Context, caller domain.Guest, cmd Command) (string, error) {
	guest, err := a.store.SetGuestAdmin(ctx, cmd.Target, cmd.Admin)
	if err != nil {
		return "", fmt.Errorf("set admin %s: %w", cmd.Target, err)
	}

	slog.Info("admin flag changed", "by", caller.Name, "guest", guest.Name, "admin", guest.IsAdmin)
	if guest.IsAdmin {
		return fmt.Sprintf("%s is now an admin.", guest.Name), nil
	}
	return fmt.Sprintf("%s is no longer an admin.", guest.Name), nil
}

func (a *AdminConsole) usage(ctx context.Context, caller domain.Guest, agentID int64) (string, error) {
	route, err := a.catalog.Lookup(ctx, agentID)
	if err != nil {
		return "", err
	}

	conv, err := a.store.GetActiveConversation(ctx, caller.ID, route.Assistant.ID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		return "No active conversation.", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active conversation: %w", err)
	}

	u, err := a.messages.Usage(ctx, conv.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Messages: %d. Prompt tokens: %d. Completion tokens: %d. Cost: %s",
		u.Messages, u.PromptTokens, u.CompletionTokens, u.Cost.StringFixed(4)), nil
}

func (a *AdminConsole) newConversation(ctx context.Context, caller domain.Guest, agentID int64) (string, error) {
	route, err := a.catalog.Lookup(ctx, agentID)
	if err != nil {
		return "", err
	}
	if _, err := a.conversations.StartNew(ctx, caller.ID, route.Assistant.ID, route.Provider.Pricing()); err != nil {
		return "", err
	}
	return "New conversation started.", nil
}

// commandErrorText turns an expected command failure into a reply. Unexpected
// errors report false and are handled by the caller.
func commandErrorText(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Permission denied.", true
	case errors.Is(err, domain.ErrGuestNotFound):
		return "Unknown user.", true
	case errors.Is(err, domain.ErrInvalidAmount):
		return "Invalid amount. Usage: $$<user> topup <amount>$$", true
	case errors.Is(err, domain.ErrInvalidCommand):
		return "Unknown command. Usage: $$list$$, $$<user> topup <amount>$$, $$<user> admin true|false$$", true
	case errors.Is(err, domain.ErrUnknownAssistant):
		return unknownAssistantText, true
	default:
		return "", false
	}
}
