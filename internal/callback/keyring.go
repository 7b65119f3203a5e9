package callback

import "sync"

// Keyring holds one verifier per WeCom app, keyed by agent id. Apps without
// their own credentials fall back to the default verifier.
type Keyring struct {
	mu       sync.RWMutex
	fallback *Verifier
	apps     map[int64]*Verifier
}

func NewKeyring(fallback *Verifier) *Keyring {
	return &Keyring{
		fallback: fallback,
		apps:     make(map[int64]*Verifier),
	}
}

// Add registers the verifier for the app with the given agent id.
func (k *Keyring) Add(agentID int64, v *Verifier) {
	k.mu.Lock()
	k.apps[agentID] = v
	k.mu.Unlock()
}

// For returns the verifier that owns agentID.
func (k *Keyring) For(agentID int64) *Verifier {
	k.mu.RLock()
	v, ok := k.apps[agentID]
	k.mu.RUnlock()
	if ok {
		return v
	}
	return k.fallback
}

func (k *Keyring) Handshake(agentID int64, q Query, echo string) (string, error) {
	return k.For(agentID).Handshake(q, echo)
}

func (k *Keyring) Open(agentID int64, q Query, body []byte) (*Message, error) {
	return k.For(agentID).Open(q, body)
}

func (k *Keyring) Reply(agentID int64, user, content string) ([]byte, error) {
	return k.For(agentID).Reply(user, content)
}
