// Package bus maintains the live channel to the message bus: one websocket
// per session, named-event frames in both directions, and a bounded
// reconnection loop.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whatube/internal/config"
	"whatube/internal/models"
)

// State is the lifecycle state of the channel.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// errAuthRejected marks a dial refused with 401/403. A bad credential is
// never retried; the auth collaborator has to supply a fresh one.
var errAuthRejected = errors.New("bus: credential rejected")

// Handler receives the data payload of one inbound event. Handlers run on
// the reader goroutine, one at a time, in subscription order.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler for Off.
type Subscription struct {
	event string
	id    uint64
}

type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type dialFunc func(ctx context.Context, url, credential string) (wireConn, error)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type handlerEntry struct {
	id uint64
	fn Handler
}

type Client struct {
	url    string
	userID string
	policy config.Reconnect
	dial   dialFunc

	mu          sync.Mutex
	state       State
	conn        wireConn
	gen         uint64
	nextSubID   uint64
	handlers    map[string][]handlerEntry
	retryCancel context.CancelFunc

	writeMu sync.Mutex
}

// New creates a client for the given bus URL. userID is the local identity
// announced in the join event after every successful connect.
func New(url, userID string, policy config.Reconnect) *Client {
	return &Client{
		url:      url,
		userID:   userID,
		policy:   policy,
		dial:     dialWebsocket,
		state:    StateIdle,
		handlers: make(map[string][]handlerEntry),
	}
}

// State returns the current channel state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel, authenticating with the given credential.
// It is idempotent: when a channel is already open or being opened, the call
// is a no-op. Failures never surface to the caller; an auth rejection leaves
// the client disconnected until Connect is called again with a fresh
// credential, a transport failure enters the bounded retry loop.
func (c *Client) Connect(ctx context.Context, credential string) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	if c.retryCancel != nil {
		c.retryCancel()
	}
	rctx, cancel := context.WithCancel(ctx)
	c.retryCancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(rctx, c.url, credential)
	if err != nil {
		if errors.Is(err, errAuthRejected) {
			log.Printf("bus: connect rejected: %v", err)
			c.setState(StateDisconnected)
			return
		}
		log.Printf("bus: connect failed: %v", err)
		c.setState(StateDisconnected)
		go c.retryLoop(rctx, credential)
		return
	}

	c.attach(rctx, conn, credential)
}

// Disconnect closes the channel, stops any reconnection attempts and clears
// all handler registrations.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.retryCancel != nil {
		c.retryCancel()
		c.retryCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = StateDisconnected
	c.handlers = make(map[string][]handlerEntry)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send emits a named event. Fire and forget: when no channel is open the
// payload is dropped and false is returned; callers that care about delivery
// use the returned flag to tag the message's delivery state.
func (c *Client) Send(event string, payload any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		log.Printf("bus: dropping %s event: not connected", event)
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("bus: dropping %s event: %v", event, err)
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(envelope{Event: event, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("bus: write failed for %s event: %v", event, err)
		return false
	}
	return true
}

// On subscribes a handler for a named inbound event. Multiple handlers per
// event are delivered in subscription order.
func (c *Client) On(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	sub := Subscription{event: event, id: c.nextSubID}
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: sub.id, fn: h})
	return sub
}

// Off removes a previously registered handler.
func (c *Client) Off(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.handlers[sub.event]
	for i, e := range entries {
		if e.id == sub.id {
			c.handlers[sub.event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// attach installs a freshly dialed connection, announces the local identity
// and starts the reader.
func (c *Client) attach(ctx context.Context, conn wireConn, credential string) {
	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = StateConnected
	c.mu.Unlock()

	data, _ := json.Marshal(models.JoinEvent{UserID: c.userID})
	c.writeMu.Lock()
	err := conn.WriteJSON(envelope{Event: models.EventJoin, Data: data})
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("bus: join announcement failed: %v", err)
	}

	go c.readLoop(ctx, gen, conn, credential)
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn wireConn, credential string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.gen != gen
			if !stale {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if stale || ctx.Err() != nil {
				return
			}
			log.Printf("bus: connection lost: %v", err)
			_ = conn.Close()
			c.retryLoop(ctx, credential)
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			log.Printf("bus: discarding malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

// dispatch delivers one inbound event to its handlers, sequentially on the
// reader goroutine so transport order is preserved.
func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	entries := append([]handlerEntry(nil), c.handlers[env.Event]...)
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(env.Data)
	}
}

// retryLoop redials with increasing delay until it succeeds, the attempt
// budget is spent, or the context is cancelled. The connection is recreated
// wholesale, never patched in place.
func (c *Client) retryLoop(ctx context.Context, credential string) {
	delay := c.policy.InitialDelay
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx, c.url, credential)
		if err == nil {
			log.Printf("bus: reconnected after %d attempt(s)", attempt)
			c.attach(ctx, conn, credential)
			return
		}

		c.setState(StateDisconnected)
		if errors.Is(err, errAuthRejected) {
			log.Printf("bus: reconnect rejected: %v", err)
			return
		}
		log.Printf("bus: reconnect attempt %d/%d failed: %v", attempt, c.policy.MaxAttempts, err)
		delay = time.Duration(float64(delay) * c.policy.BackoffMultiplier)
	}
	log.Printf("bus: giving up after %d reconnect attempts", c.policy.MaxAttempts)
}

func dialWebsocket(ctx context.Context, url, credential string) (wireConn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errAuthRejected
		}
		return nil, err
	}
	return conn, nil
}
