// Package session assembles the delivery core for one signed-in user: it
// loads the identity, warms the store from the local history cache, seeds it
// from the roster service and brings up the bus channel. The session object
// replaces any global client state; everything a UI needs hangs off it.
package session

import (
	"context"
	"fmt"
	"log"

	"whatube/internal/bus"
	"whatube/internal/config"
	"whatube/internal/dispatch"
	"whatube/internal/history"
	"whatube/internal/media"
	"whatube/internal/models"
	"whatube/internal/presence"
	"whatube/internal/roster"
	"whatube/internal/store"
)

type Session struct {
	cfg *config.Config

	store   *store.Store
	tracker *presence.Tracker
	roster  *roster.Client

	bus      *bus.Client
	dispatch *dispatch.Dispatcher
	history  *history.Cache

	me      models.Profile
	changes chan store.Change
}

// New creates an unstarted session. ctx bounds the lifetime of background
// maintenance such as the roster profile cache.
func New(ctx context.Context, cfg *config.Config) *Session {
	s := store.New()
	sess := &Session{
		cfg:     cfg,
		store:   s,
		tracker: presence.NewTracker(s),
		roster:  roster.New(ctx, cfg.APIBaseURL, func() string { return cfg.Token }),
		changes: make(chan store.Change, 64),
	}
	s.OnChange(sess.onStoreChange)
	return sess
}

// Start loads the local identity, restores cached history, seeds the roster
// and connects the bus. Only a failed identity load is fatal: without it the
// session cannot announce itself on the bus. History and roster failures
// degrade to an emptier sidebar.
func (s *Session) Start(ctx context.Context) error {
	me, err := s.roster.Me(ctx)
	if err != nil {
		return fmt.Errorf("loading own profile: %w", err)
	}
	s.me = me

	if cache, err := history.NewCache(s.cfg.HistoryFile); err != nil {
		log.Printf("session: history cache unavailable: %v", err)
	} else {
		s.history = cache
		s.warm()
	}

	var mediaStore media.Store
	if local, err := media.NewLocalStore(s.cfg.MediaPath); err != nil {
		log.Printf("session: media store unavailable: %v", err)
	} else {
		mediaStore = local
	}

	s.bus = bus.New(s.cfg.BusURL, me.ID, s.cfg.Reconnect)
	s.dispatch = dispatch.New(s.store, s.bus, mediaStore, me)
	s.bus.On(models.EventReceiveMessage, s.dispatch.HandleReceiveMessage)
	s.bus.On(models.EventNotification, s.dispatch.HandleNotification)

	if conversations, err := s.roster.Conversations(ctx); err != nil {
		log.Printf("session: roster load failed: %v", err)
	} else {
		s.store.Seed(conversations)
	}

	s.bus.Connect(ctx, s.cfg.Token)
	return nil
}

// Close tears the session down: the bus channel is closed, reconnection
// stops and the history cache is flushed to disk.
func (s *Session) Close() {
	if s.bus != nil {
		s.bus.Disconnect()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			log.Printf("session: history close failed: %v", err)
		}
	}
}

// Me returns the local profile loaded at Start.
func (s *Session) Me() models.Profile {
	return s.me
}

// Changes is a coalescing feed of store mutations for the UI. Entries are
// dropped when the consumer lags; the UI re-reads snapshots anyway.
func (s *Session) Changes() <-chan store.Change {
	return s.changes
}

// Roster exposes the roster client for the friend-request and profile
// surfaces of the UI.
func (s *Session) Roster() *roster.Client {
	return s.roster
}

func (s *Session) Conversations() []models.Conversation {
	return s.store.Conversations()
}

func (s *Session) Messages(peerID string) []models.Message {
	return s.store.Get(peerID)
}

func (s *Session) ActiveID() string {
	return s.store.ActiveID()
}

func (s *Session) TotalUnread() int {
	return s.tracker.TotalUnread()
}

// BusState reports the channel state for the status line.
func (s *Session) BusState() bus.State {
	if s.bus == nil {
		return bus.StateIdle
	}
	return s.bus.State()
}

// SetActive focuses a conversation, clearing its unread counter.
func (s *Session) SetActive(peerID string) {
	s.store.SetActive(peerID)
}

// StartChat opens a conversation with a peer that may not be in the sidebar
// yet. The display name is resolved through the roster when possible.
func (s *Session) StartChat(ctx context.Context, peerID string) {
	displayName := ""
	if profile, err := s.roster.UserByID(ctx, peerID); err == nil {
		displayName = profile.DisplayName
	}
	s.store.StartChat(peerID, displayName)
}

// Submit sends the composer state to the active conversation.
func (s *Session) Submit(draft string, files []dispatch.File) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.Submit(s.store.ActiveID(), draft, files)
}

// SendSticker sends one sticker to the active conversation.
func (s *Session) SendSticker(glyph string) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.SendSticker(s.store.ActiveID(), glyph)
}

// onStoreChange persists message traffic to the history cache and forwards
// the change to the UI feed.
func (s *Session) onStoreChange(c store.Change) {
	s.persist(c)
	select {
	case s.changes <- c:
	default:
	}
}

// persist writes appended messages through to the history cache. Delivery
// retags and active switches are in-memory concerns and are not persisted;
// unread counters are stripped by the cache itself.
func (s *Session) persist(c store.Change) {
	if s.history == nil {
		return
	}

	switch c.Kind {
	case store.ChangeIncoming, store.ChangeOutgoing:
		if err := s.history.AppendMessage(c.PeerID, *c.Message); err != nil {
			log.Printf("session: history append failed: %v", err)
			return
		}
		if conv, ok := s.store.Conversation(c.PeerID); ok {
			if err := s.history.UpsertConversation(conv); err != nil {
				log.Printf("session: history upsert failed: %v", err)
			}
		}
	}
}

// warm restores conversations and logs cached by a previous run.
func (s *Session) warm() {
	conversations, err := s.history.ListConversations()
	if err != nil {
		log.Printf("session: history warm-up failed: %v", err)
		return
	}

	for _, c := range conversations {
		msgs, err := s.history.ListMessages(c.ID)
		if err != nil {
			log.Printf("session: history warm-up for %s failed: %v", c.ID, err)
			continue
		}
		s.store.Warm(c, msgs)
	}
	if len(conversations) > 0 {
		log.Printf("session: restored %d conversation(s) from history", len(conversations))
	}
}
