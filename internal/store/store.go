// Package store owns all conversation and message state. Every mutation of
// unread counters or message logs goes through this package; other components
// hold no duplicate copies.
package store

import (
	"sort"
	"sync"
	"time"

	"whatube/internal/models"
	"whatube/internal/presence"
)

// ChangeKind tags store change notifications.
type ChangeKind string

const (
	ChangeSeed         ChangeKind = "seed"
	ChangeIncoming     ChangeKind = "incoming"
	ChangeOutgoing     ChangeKind = "outgoing"
	ChangeActiveSwitch ChangeKind = "active"
	ChangeDelivery     ChangeKind = "delivery"
)

// Change describes one store mutation. Message is set for incoming and
// outgoing appends.
type Change struct {
	Kind    ChangeKind
	PeerID  string
	Message *models.Message
}

type Store struct {
	mu sync.RWMutex

	conversations map[string]*models.Conversation
	logs          map[string][]models.Message
	touched       map[string]time.Time
	activeID      string

	onChange []func(Change)
	now      func() time.Time
}

func New() *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		logs:          make(map[string][]models.Message),
		touched:       make(map[string]time.Time),
		now:           time.Now,
	}
}

// OnChange registers a notification hook. Hooks run after the mutation, in
// registration order, outside the store lock. Registration is expected to
// happen during session wiring, before traffic flows.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	hooks := make([]func(Change), len(s.onChange))
	copy(hooks, s.onChange)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn(c)
	}
}

// Seed merges the roster-loaded conversation set into the store. For peers
// already present only presentation fields are refreshed: unread counters,
// previews, activity labels and message logs survive a reseed. Conversations
// absent from the seed (for example ones created by an unknown sender) are
// kept.
func (s *Store) Seed(conversations []models.Conversation) {
	s.mu.Lock()
	for _, c := range conversations {
		existing, ok := s.conversations[c.ID]
		if !ok {
			seeded := c
			s.conversations[c.ID] = &seeded
			continue
		}
		existing.DisplayName = c.DisplayName
		existing.Subtitle = c.Subtitle
		existing.IsOnline = c.IsOnline
		existing.IsPinned = c.IsPinned
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSeed})
}

// UpsertIncoming appends an inbound message to the peer's log, creating the
// conversation with default presentation fields when the sender is unknown.
// The unread counter is incremented only when the conversation is not the
// active one.
func (s *Store) UpsertIncoming(peerID string, msg models.Message) {
	s.mu.Lock()
	c := s.ensureLocked(peerID, msg.SenderDisplayName)
	s.logs[peerID] = append(s.logs[peerID], msg)
	s.touchLocked(c, msg)
	if peerID != s.activeID {
		c.UnreadCount++
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeIncoming, PeerID: peerID, Message: &msg})
}

// AppendOutgoing appends a locally originated message to the peer's log.
// Outgoing messages never touch the unread counter.
func (s *Store) AppendOutgoing(peerID string, msg models.Message) {
	s.mu.Lock()
	c := s.ensureLocked(peerID, "")
	s.logs[peerID] = append(s.logs[peerID], msg)
	s.touchLocked(c, msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeOutgoing, PeerID: peerID, Message: &msg})
}

// SetDelivery updates the delivery state of one outgoing message in place.
// The log itself stays append-only; only the state tag changes.
func (s *Store) SetDelivery(peerID, messageID string, state models.DeliveryState) {
	s.mu.Lock()
	var updated *models.Message
	log := s.logs[peerID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].ID == messageID {
			log[i].Delivery = state
			copied := log[i]
			updated = &copied
			break
		}
	}
	s.mu.Unlock()

	if updated != nil {
		s.notify(Change{Kind: ChangeDelivery, PeerID: peerID, Message: updated})
	}
}

// SetActive switches the focused conversation and clears its unread counter.
func (s *Store) SetActive(peerID string) {
	s.mu.Lock()
	s.activeID = peerID
	if c, ok := s.conversations[peerID]; ok {
		c.UnreadCount = 0
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeActiveSwitch, PeerID: peerID})
}

// StartChat creates an empty conversation for the given peer if none exists
// and makes it active.
func (s *Store) StartChat(peerID, displayName string) {
	s.mu.Lock()
	c := s.ensureLocked(peerID, displayName)
	if displayName != "" {
		c.DisplayName = displayName
	}
	s.mu.Unlock()

	s.SetActive(peerID)
}

// Get returns the ordered message log for a peer, empty if none. The
// returned slice is a copy; log mutation only happens inside the store.
func (s *Store) Get(peerID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[peerID]
	out := make([]models.Message, len(log))
	copy(out, log)
	return out
}

// Conversation returns a snapshot of one conversation.
func (s *Store) Conversation(peerID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[peerID]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

// Conversations returns a snapshot of all conversations, pinned first, then
// by most recent activity.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.conversations[ids[i]], s.conversations[ids[j]]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		ta, tb := s.touched[ids[i]], s.touched[ids[j]]
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.DisplayName < b.DisplayName
	})
	for _, id := range ids {
		out = append(out, *s.conversations[id])
	}
	return out
}

// ActiveID returns the id of the currently focused conversation.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Warm restores one conversation and its log, typically from the local
// history cache before the roster is seeded. It bypasses unread accounting:
// restored messages were already seen in a previous run.
func (s *Store) Warm(c models.Conversation, log []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := c
	s.conversations[c.ID] = &stored
	s.logs[c.ID] = append([]models.Message(nil), log...)
}

func (s *Store) ensureLocked(peerID, displayName string) *models.Conversation {
	c, ok := s.conversations[peerID]
	if !ok {
		if displayName == "" {
			displayName = peerID
		}
		c = &models.Conversation{
			ID:          peerID,
			DisplayName: displayName,
		}
		s.conversations[peerID] = c
	}
	return c
}

func (s *Store) touchLocked(c *models.Conversation, msg models.Message) {
	c.LastActiveAt = msg.At
	c.LastMessagePreview = presence.Preview(msg)
	s.touched[c.ID] = s.now()
}
