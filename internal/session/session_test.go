package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"whatube/internal/config"
	"whatube/internal/models"
)

type wireEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// busServer is a minimal bus endpoint: it accepts websocket upgrades,
// records every inbound frame and hands out the live connection so tests
// can push frames the other way.
type busServer struct {
	srv    *httptest.Server
	frames chan wireEnvelope
	conns  chan *websocket.Conn
}

func newBusServer(t *testing.T) *busServer {
	t.Helper()
	b := &busServer{
		frames: make(chan wireEnvelope, 16),
		conns:  make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env wireEnvelope
			if json.Unmarshal(raw, &env) == nil {
				b.frames <- env
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *busServer) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *busServer) nextFrame(t *testing.T) wireEnvelope {
	t.Helper()
	select {
	case env := <-b.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a bus frame")
		return wireEnvelope{}
	}
}

func (b *busServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a bus connection")
		return nil
	}
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	writeData := func(w http.ResponseWriter, data any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, models.Profile{ID: "me1", Username: "ana", DisplayName: "Ana", AvatarInitials: "AN"})
	})
	mux.HandleFunc("/users/getAllFriends", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []map[string]any{
			{"id": "friend1", "title": "Boris", "isOnline": true},
		})
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/users/")
		writeData(w, models.Profile{ID: id, Username: id, DisplayName: "Peer " + id})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, busURL, apiURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		BusURL:      busURL,
		APIBaseURL:  apiURL,
		HistoryFile: filepath.Join(dir, "history.db"),
		MediaPath:   filepath.Join(dir, "media"),
		Token:       "test-token",
		Reconnect: config.Reconnect{
			MaxAttempts:       1,
			InitialDelay:      10 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionLifecycle(t *testing.T) {
	busSrv := newBusServer(t)
	apiSrv := newAPIServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t, busSrv.url(), apiSrv.URL)
	sess := New(ctx, cfg)
	require.NoError(t, sess.Start(ctx))
	defer sess.Close()

	require.Equal(t, "me1", sess.Me().ID)

	// The bus learns who we are before anything else.
	join := busSrv.nextFrame(t)
	require.Equal(t, models.EventJoin, join.Event)
	var joined models.JoinEvent
	require.NoError(t, json.Unmarshal(join.Data, &joined))
	require.Equal(t, "me1", joined.UserID)

	// The roster seeded the sidebar.
	conversations := sess.Conversations()
	require.Len(t, conversations, 1)
	require.Equal(t, "Boris", conversations[0].DisplayName)
	require.True(t, conversations[0].IsOnline)

	// Sending addresses the active conversation and carries our identity.
	sess.SetActive("friend1")
	sess.Submit("hello there", nil)

	frame := busSrv.nextFrame(t)
	require.Equal(t, models.EventPersonalMessage, frame.Event)
	var sent models.PersonalMessageEvent
	require.NoError(t, json.Unmarshal(frame.Data, &sent))
	require.Equal(t, "friend1", sent.To)
	require.Equal(t, "hello there", sent.Messages)
	require.Equal(t, "Ana", sent.SenderName)

	log := sess.Messages("friend1")
	require.Len(t, log, 1)
	require.Equal(t, models.DeliverySent, log[0].Delivery)

	// An inbound message from an unknown sender creates its conversation
	// and counts as unread while another chat is focused.
	serverConn := busSrv.conn(t)
	require.NoError(t, serverConn.WriteJSON(wireEnvelope{
		Event: models.EventReceiveMessage,
		Data:  mustMarshal(t, models.ReceiveMessageEvent{From: "friend2", Messages: "hi!", SenderName: "Vera"}),
	}))

	waitFor(t, func() bool { return sess.TotalUnread() == 1 }, "inbound message never counted as unread")
	require.Len(t, sess.Conversations(), 2)

	// Focusing the new conversation clears its counter.
	sess.SetActive("friend2")
	require.Equal(t, 0, sess.TotalUnread())
}

func TestSessionRestoresHistory(t *testing.T) {
	busSrv := newBusServer(t)
	apiSrv := newAPIServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t, busSrv.url(), apiSrv.URL)

	first := New(ctx, cfg)
	require.NoError(t, first.Start(ctx))
	busSrv.nextFrame(t) // join

	first.SetActive("friend1")
	first.Submit("remember me", nil)
	busSrv.nextFrame(t)

	waitFor(t, func() bool { return len(first.Messages("friend1")) == 1 }, "message never appended")
	first.Close()

	second := New(ctx, cfg)
	require.NoError(t, second.Start(ctx))
	defer second.Close()

	log := second.Messages("friend1")
	require.Len(t, log, 1)
	require.Equal(t, "remember me", log[0].Body)

	conv, ok := findConversation(second.Conversations(), "friend1")
	require.True(t, ok)
	require.Equal(t, "remember me", conv.LastMessagePreview)
	require.Zero(t, conv.UnreadCount, "restored history must not resurrect unread counters")
}

func TestSessionStartFailsWithoutIdentity(t *testing.T) {
	busSrv := newBusServer(t)
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(apiSrv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := New(ctx, testConfig(t, busSrv.url(), apiSrv.URL))
	require.Error(t, sess.Start(ctx))
}

func TestSessionStartChatResolvesName(t *testing.T) {
	busSrv := newBusServer(t)
	apiSrv := newAPIServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := New(ctx, testConfig(t, busSrv.url(), apiSrv.URL))
	require.NoError(t, sess.Start(ctx))
	defer sess.Close()

	sess.StartChat(ctx, "stranger9")
	require.Equal(t, "stranger9", sess.ActiveID())

	conv, ok := findConversation(sess.Conversations(), "stranger9")
	require.True(t, ok)
	require.Equal(t, "Peer stranger9", conv.DisplayName)
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func findConversation(list []models.Conversation, id string) (models.Conversation, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conversation{}, false
}
