package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct{ a, b string }

type clientKey struct{ sender, conversation, clientID string }

// MemoryStore keeps everything in process. One mutex makes each method a
// single atomic document operation.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]*Conversation // id -> conversation
	byPair        map[pairKey]string
	messages      map[string]*Message
	seq           map[string]int // message id -> insertion position
	history       map[string][]string // conversation id -> message ids, insertion order
	byClientID    map[clientKey]string
	index         map[string][]string // user id -> conversation ids
	accounts      map[string]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*Conversation{},
		byPair:        map[pairKey]string{},
		messages:      map[string]*Message{},
		seq:           map[string]int{},
		history:       map[string][]string{},
		byClientID:    map[clientKey]string{},
		index:         map[string][]string{},
		accounts:      map[string]*Account{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func copyConversation(c *Conversation) *Conversation {
	cp := *c
	cp.PendingForA = append([]string{}, c.PendingForA...)
	cp.PendingForB = append([]string{}, c.PendingForB...)
	return &cp
}

func (s *MemoryStore) UpsertConversation(_ context.Context, a, b string) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[pairKey{a, b}]; ok {
		return copyConversation(s.conversations[id]), false, nil
	}
	c := &Conversation{
		ID:          uuid.NewString(),
		UserA:       a,
		UserB:       b,
		PendingForA: []string{},
		PendingForB: []string{},
		CreatedAt:   time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	s.byPair[pairKey{a, b}] = c.ID
	return copyConversation(c), true, nil
}

func (s *MemoryStore) FindConversation(_ context.Context, a, b string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{a, b}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

func (s *MemoryStore) AppendPending(_ context.Context, conversationID string, slot Slot, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	list := &c.PendingForB
	if slot == SlotA {
		list = &c.PendingForA
	}
	for _, id := range *list {
		if id == messageID {
			return nil
		}
	}
	*list = append(*list, messageID)
	return nil
}

func (s *MemoryStore) RemovePending(_ context.Context, conversationID string, slot Slot, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	list := &c.PendingForB
	if slot == SlotA {
		list = &c.PendingForA
	}
	kept := make([]string, 0, len(*list))
	for _, id := range *list {
		if id != messageID {
			kept = append(kept, id)
		}
	}
	*list = kept
	return nil
}

func (s *MemoryStore) ClearPending(_ context.Context, conversationID string, slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if slot == SlotA {
		c.PendingForA = []string{}
	} else {
		c.PendingForB = []string{}
	}
	return nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg *Message) (*Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ClientMsgID != "" {
		if id, ok := s.byClientID[clientKey{msg.SenderID, msg.ConversationID, msg.ClientMsgID}]; ok {
			cp := *s.messages[id]
			return &cp, true, nil
		}
	}
	m := *msg
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	s.messages[m.ID] = &m
	s.seq[m.ID] = len(s.seq)
	s.history[m.ConversationID] = append(s.history[m.ConversationID], m.ID)
	if m.ClientMsgID != "" {
		s.byClientID[clientKey{m.SenderID, m.ConversationID, m.ClientMsgID}] = m.ID
	}
	cp := m
	return &cp, false, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, limit, offset int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		return []Message{}, nil
	}
	ids := s.history[conversationID]
	out := make([]Message, 0, limit)
	for i := len(ids) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.messages[ids[i]])
	}
	return out, nil
}

func (s *MemoryStore) GetMessages(_ context.Context, ids []string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

func (s *MemoryStore) LastMessage(_ context.Context, conversationID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[conversationID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	cp := *s.messages[ids[len(ids)-1]]
	return &cp, nil
}

func (s *MemoryStore) AddToIndex(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.index[userID] {
		if id == conversationID {
			return nil
		}
	}
	s.index[userID] = append(s.index[userID], conversationID)
	return nil
}

func (s *MemoryStore) ListIndex(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.index[userID]...), nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertAccount(_ context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acc
	if cp.Status == "" {
		cp.Status = StatusActive
	}
	s.accounts[cp.UserID] = &cp
	return nil
}
