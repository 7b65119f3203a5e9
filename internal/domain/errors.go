package domain

import "errors"

var (
	ErrAuth                 = errors.New("callback authentication failed")
	ErrIntegrity            = errors.New("callback payload integrity check failed")
	ErrReplay               = errors.New("callback nonce already seen")
	ErrInsufficientCredit   = errors.New("insufficient credit")
	ErrProvider             = errors.New("provider unavailable")
	ErrStore                = errors.New("store operation failed")
	ErrGuestNotFound        = errors.New("guest not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnknownAssistant     = errors.New("unknown assistant")
	ErrProviderNotFound     = errors.New("provider not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidCommand       = errors.New("invalid command")
	ErrInvalidAmount        = errors.New("invalid amount")
)

// ProviderErrorKind classifies upstream failures at the ProviderClient boundary.
type ProviderErrorKind string

const (
	ProviderRateLimited  ProviderErrorKind = "rate_limited"
	ProviderTimeout      ProviderErrorKind = "timeout"
	ProviderUnauthorized ProviderErrorKind = "unauthorized"
	ProviderOther        ProviderErrorKind = "other"
)

type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "provider " + string(e.Kind)
	}
	return "provider " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes every ProviderError match ErrProvider.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
