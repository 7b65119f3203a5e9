package service

import (
	"strconv"
	"strings"

	"github.com/set-night/llmgate/internal/domain"
	"github.com/shopspring/decimal"
)

// Input is the classified form of an inbound text: a Command or a ChatMessage.
type Input interface {
	input()
}

type CommandKind int

const (
	CommandListGuests CommandKind = iota + 1
	CommandTopUp
	CommandSetAdmin
	CommandBalance
	CommandUsage
	CommandNewConversation
)

func (k CommandKind) String() string {
	switch k {
	case CommandListGuests:
		return "list_guests"
	case CommandTopUp:
		return "top_up"
	case CommandSetAdmin:
		return "set_admin"
	case CommandBalance:
		return "balance"
	case CommandUsage:
		return "usage"
	case CommandNewConversation:
		return "new_conversation"
	default:
		return "unknown"
	}
}

// AdminOnly reports whether the caller must be an admin.
func (k CommandKind) AdminOnly() bool {
	switch k {
	case CommandListGuests, CommandTopUp, CommandSetAdmin:
		return true
	default:
		return false
	}
}

type Command struct {
	Kind   CommandKind
	Target string
	Amount decimal.Decimal
	Admin  bool
}

type ChatMessage struct {
	Text string
}

func (Command) input()     {}
func (ChatMessage) input() {}

const (
	adminDelim = "$$"
	selfPrefix = "#"
)

var (
	listWords  = map[string]bool{"list": true, "查用户": true}
	topUpWords = map[string]bool{"topup": true, "充值": true}
	adminWords = map[string]bool{"admin": true, "管理员": true}

	selfCommands = map[string]CommandKind{
		"balance": CommandBalance,
		"查余额":     CommandBalance,
		"usage":   CommandUsage,
		"查消耗":     CommandUsage,
		"new":     CommandNewConversation,
		"新会话":     CommandNewConversation,
	}
)

// Classify parses admin commands of the form $$...$$ and self-service commands
// starting with '#'. Anything else is chat. A malformed admin command returns
// domain.ErrInvalidCommand or domain.ErrInvalidAmount.
func Classify(text string) (Input, error) {
	trimmed := strings.TrimSpace(text)

	if len(trimmed) >= 2*len(adminDelim) && strings.HasPrefix(trimmed, adminDelim) && strings.HasSuffix(trimmed, adminDelim) {
		return parseAdmin(strings.TrimSpace(trimmed[len(adminDelim) : len(trimmed)-len(adminDelim)]))
	}

	if strings.HasPrefix(trimmed, selfPrefix) {
		word := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, selfPrefix)))
		if kind, ok := selfCommands[word]; ok {
			return Command{Kind: kind}, nil
		}
	}

	return ChatMessage{Text: text}, nil
}

func parseAdmin(body string) (Input, error) {
	fields := strings.Fields(body)

	switch {
	case len(fields) == 1 && listWords[strings.ToLower(fields[0])]:
		return Command{Kind: CommandListGuests}, nil

	case len(fields) == 3 && topUpWords[strings.ToLower(fields[1])]:
		amount, err := decimal.NewFromString(fields[2])
		if err != nil || !domain.ValidTopUp(amount) {
			return nil, domain.ErrInvalidAmount
		}
		return Command{Kind: CommandTopUp, Target: fields[0], Amount: amount}, nil

	case len(fields) == 3 && adminWords[strings.ToLower(fields[1])]:
		admin, err := strconv.ParseBool(fields[2])
		if err != nil {
			return nil, domain.ErrInvalidCommand
		}
		return Command{Kind: CommandSetAdmin, Target: fields[0], Admin: admin}, nil
	}

	return nil, domain.ErrInvalidCommand
}
