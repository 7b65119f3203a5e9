package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/repository"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. Transactions are serialized and roll back to a
// snapshot when fn fails.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	calls atomic.Int64

	guests        map[domain.GuestID]domain.Guest
	conversations map[domain.ConversationID]domain.Conversation
	messages      []domain.Message
	nonces        map[[2]string]time.Time
	assistants    map[int64]domain.Assistant
	providers     map[domain.ProviderID]domain.Provider

	nextID int64

	// failures keyed by method name
	fail map[string]error
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		guests:        make(map[domain.GuestID]domain.Guest),
		conversations: make(map[domain.ConversationID]domain.Conversation),
		nonces:        make(map[[2]string]time.Time),
		assistants:    make(map[int64]domain.Assistant),
		providers:     make(map[domain.ProviderID]domain.Provider),
		fail:          make(map[string]error),
	}
}

func (s *memStore) enter(method string) error {
	s.calls.Add(1)
	return s.fail[method]
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addRoute(agentID int64, p domain.Provider, a domain.Assistant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
	a.AgentID = agentID
	a.ProviderID = p.ID
	s.assistants[agentID] = a
}

func (s *memStore) addGuest(name string, credit decimal.Decimal, admin bool) domain.Guest {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := domain.Guest{ID: domain.GuestID(s.id()), Name: name, Credit: credit, IsAdmin: admin}
	s.guests[g.ID] = g
	return g
}

func (s *memStore) guest(name string) (domain.Guest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guestLocked(name)
}

func (s *memStore) guestLocked(name string) (domain.Guest, bool) {
	for _, g := range s.guests {
		if g.Name == name {
			return g, true
		}
	}
	return domain.Guest{}, false
}

func (s *memStore) allMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *memStore) activeConversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conversations {
		if c.Active {
			n++
		}
	}
	return n
}

func (s *memStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := s.enter("InTx"); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	guests        map[domain.GuestID]domain.Guest
	conversations map[domain.ConversationID]domain.Conversation
	messages      []domain.Message
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		guests:        make(map[domain.GuestID]domain.Guest, len(s.guests)),
		conversations: make(map[domain.ConversationID]domain.Conversation, len(s.conversations)),
		messages:      append([]domain.Message(nil), s.messages...),
	}
	for k, v := range s.guests {
		snap.guests[k] = v
	}
	for k, v := range s.conversations {
		snap.conversations[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guests = snap.guests
	s.conversations = snap.conversations
	s.messages = snap.messages
}

func (s *memStore) GetGuestByName(ctx context.Context, name string) (domain.Guest, error) {
	if err := s.enter("GetGuestByName"); err != nil {
		return domain.Guest{}, err
	}
	g, ok := s.guest(name)
	if !ok {
		return domain.Guest{}, domain.ErrGuestNotFound
	}
	return g, nil
}

func (s *memStore) UpsertGuest(ctx context.Context, name string) (domain.Guest, bool, error) {
	if err := s.enter("UpsertGuest"); err != nil {
		return domain.Guest{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guestLocked(name); ok {
		return g, false, nil
	}
	g := domain.Guest{ID: domain.GuestID(s.id()), Name: name, Credit: decimal.Zero}
	s.guests[g.ID] = g
	return g, true, nil
}

func (s *memStore) GetGuestForUpdate(ctx context.Context, id domain.GuestID) (domain.Guest, error) {
	if err := s.enter("GetGuestForUpdate"); err != nil {
		return domain.Guest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[id]
	if !ok {
		return domain.Guest{}, domain.ErrGuestNotFound
	}
	return g, nil
}

func (s *memStore) SetGuestCredit(ctx context.Context, id domain.GuestID, credit decimal.Decimal) error {
	if err := s.enter("SetGuestCredit"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[id]
	if !ok {
		return domain.ErrGuestNotFound
	}
	g.Credit = credit
	s.guests[id] = g
	return nil
}

func (s *memStore) AddGuestCredit(ctx context.Context, id domain.GuestID, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := s.enter("AddGuestCredit"); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[id]
	if !ok {
		return decimal.Zero, domain.ErrGuestNotFound
	}
	g.Credit = g.Credit.Add(delta)
	s.guests[id] = g
	return g.Credit, nil
}

func (s *memStore) SetGuestAdmin(ctx context.Context, name string, admin bool) (domain.Guest, error) {
	if err := s.enter("SetGuestAdmin"); err != nil {
		return domain.Guest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guestLocked(name)
	if !ok {
		return domain.Guest{}, domain.ErrGuestNotFound
	}
	g.IsAdmin = admin
	s.guests[g.ID] = g
	return g, nil
}

func (s *memStore) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	if err := s.enter("ListGuests"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Guest, 0, len(s.guests))
	for id := domain.GuestID(1); id <= domain.GuestID(s.nextID); id++ {
		if g, ok := s.guests[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *memStore) GetAssistantByAgentID(ctx context.Context, agentID int64) (domain.Assistant, error) {
	if err := s.enter("GetAssistantByAgentID"); err != nil {
		return domain.Assistant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assistants[agentID]
	if !ok {
		return domain.Assistant{}, domain.ErrUnknownAssistant
	}
	return a, nil
}

func (s *memStore) GetProvider(ctx context.Context, id domain.ProviderID) (domain.Provider, error) {
	if err := s.enter("GetProvider"); err != nil {
		return domain.Provider{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return domain.Provider{}, domain.ErrProviderNotFound
	}
	return p, nil
}

func (s *memStore) GetActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (domain.Conversation, error) {
	if err := s.enter("GetActiveConversation"); err != nil {
		return domain.Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Active && c.GuestID == guestID && c.AssistantID == assistantID {
			return c, nil
		}
	}
	return domain.Conversation{}, domain.ErrConversationNotFound
}

func (s *memStore) InsertActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID, pricing domain.Pricing) (domain.Conversation, bool, error) {
	if err := s.enter("InsertActiveConversation"); err != nil {
		return domain.Conversation{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Active && c.GuestID == guestID && c.AssistantID == assistantID {
			return domain.Conversation{}, false, nil
		}
	}
	now := time.Now()
	c := domain.Conversation{
		ID:          domain.ConversationID(s.id()),
		GuestID:     guestID,
		AssistantID: assistantID,
		Active:      true,
		Pricing:     pricing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[c.ID] = c
	return c, true, nil
}

func (s *memStore) CloseConversation(ctx context.Context, id domain.ConversationID) error {
	if err := s.enter("CloseConversation"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.Active = false
	s.conversations[id] = c
	return nil
}

func (s *memStore) CloseActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (bool, error) {
	if err := s.enter("CloseActiveConversation"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conversations {
		if c.Active && c.GuestID == guestID && c.AssistantID == assistantID {
			c.Active = false
			s.conversations[id] = c
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CloseIdleConversations(ctx context.Context, before time.Time) (int64, error) {
	if err := s.enter("CloseIdleConversations"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.conversations {
		if c.Active && c.UpdatedAt.Before(before) {
			c.Active = false
			s.conversations[id] = c
			n++
		}
	}
	return n, nil
}

func (s *memStore) TouchConversation(ctx context.Context, id domain.ConversationID) error {
	if err := s.enter("TouchConversation"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.UpdatedAt = time.Now()
	s.conversations[id] = c
	return nil
}

func (s *memStore) InsertMessage(ctx context.Context, msg domain.NewMessage) (domain.MessageID, error) {
	if err := s.enter("InsertMessage"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.Message{
		ID:               domain.MessageID(s.id()),
		ConversationID:   msg.ConversationID,
		CreatedAt:        time.Now(),
		Content:          msg.Content,
		Cost:             msg.Cost,
		Type:             msg.Type,
		ContentType:      msg.ContentType,
		PromptTokens:     msg.PromptTokens,
		CompletionTokens: msg.CompletionTokens,
	}
	s.messages = append(s.messages, m)
	return m.ID, nil
}

func (s *memStore) LatestMessages(ctx context.Context, conversationID domain.ConversationID, n int) ([]domain.Message, error) {
	if err := s.enter("LatestMessages"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var conv []domain.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			conv = append(conv, m)
		}
	}
	if len(conv) > n {
		conv = conv[len(conv)-n:]
	}
	return conv, nil
}

func (s *memStore) ConversationUsage(ctx context.Context, conversationID domain.ConversationID) (domain.Usage, error) {
	if err := s.enter("ConversationUsage"); err != nil {
		return domain.Usage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.Usage{Cost: decimal.Zero}
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		u.Messages++
		u.PromptTokens += m.PromptTokens
		u.CompletionTokens += m.CompletionTokens
		u.Cost = u.Cost.Add(m.Cost)
	}
	return u, nil
}

func (s *memStore) ClaimNonce(ctx context.Context, nonce, timestamp string) (bool, error) {
	if err := s.enter("ClaimNonce"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{nonce, timestamp}
	if _, ok := s.nonces[key]; ok {
		return false, nil
	}
	s.nonces[key] = time.Now()
	return true, nil
}

func (s *memStore) ReleaseNonce(ctx context.Context, nonce, timestamp string) error {
	if err := s.enter("ReleaseNonce"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nonces, [2]string{nonce, timestamp})
	return nil
}

func (s *memStore) PurgeNonces(ctx context.Context, before time.Time) (int64, error) {
	if err := s.enter("PurgeNonces"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, at := range s.nonces {
		if at.Before(before) {
			delete(s.nonces, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) hasNonce(nonce, timestamp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nonces[[2]string{nonce, timestamp}]
	return ok
}

// recordingSink collects alerts.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Notify(ctx context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
