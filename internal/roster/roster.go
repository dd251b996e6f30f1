// Package roster talks to the HTTP collaborator that owns the contact
// graph. It seeds the conversation store once per session and serves the
// friend-request surface of the UI.
package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/c-pro/geche"

	"whatube/internal/models"
)

const profileCacheTTL = 5 * time.Minute

// Friend is the roster service's contact representation.
type Friend struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	LastActiveAt string `json:"lastActiveAt,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	IsOnline     bool   `json:"isOnline,omitempty"`
	UnreadCount  int    `json:"unreadCount,omitempty"`
	IsPinned     bool   `json:"isPinned,omitempty"`
	LastMessage  string `json:"lastMessage,omitempty"`
}

// Conversation converts a roster contact into its store representation.
func (f Friend) Conversation() models.Conversation {
	return models.Conversation{
		ID:                 f.ID,
		DisplayName:        f.Title,
		Subtitle:           f.Subtitle,
		LastActiveAt:       f.LastActiveAt,
		UnreadCount:        f.UnreadCount,
		LastMessagePreview: f.LastMessage,
		IsOnline:           f.IsOnline,
		IsPinned:           f.IsPinned,
	}
}

// ProfileUpdate is the payload of the profile patch endpoint.
type ProfileUpdate struct {
	Bio      string `json:"bio,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
}

type Client struct {
	base       string
	http       *http.Client
	credential func() string
	profiles   geche.Geche[string, models.Profile]
}

// New creates a roster client. credential is called per request so token
// refreshes by the auth collaborator are picked up transparently.
func New(ctx context.Context, baseURL string, credential func() string) *Client {
	return &Client{
		base:       baseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		credential: credential,
		profiles:   geche.NewMapTTLCache[string, models.Profile](ctx, profileCacheTTL, time.Minute),
	}
}

// Me fetches the current user profile, seeding the local identity.
func (c *Client) Me(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// AllFriends bulk-fetches the contact list used to seed the store.
func (c *Client) AllFriends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := c.do(ctx, http.MethodGet, "/users/getAllFriends", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// Conversations fetches the roster and converts it for seeding.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	friends, err := c.AllFriends(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(friends))
	for _, f := range friends {
		out = append(out, f.Conversation())
	}
	return out, nil
}

// FriendRequests fetches pending incoming requests.
func (c *Client) FriendRequests(ctx context.Context) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	if err := c.do(ctx, http.MethodGet, "/users/fetch-friend-req", nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// RespondFriendRequest accepts or rejects one pending request.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID string, accept bool) error {
	body := map[string]any{"requestId": requestID, "accept": accept}
	return c.do(ctx, http.MethodPost, "/users/respond-friend-req", body, nil)
}

// UpdateProfile patches the user's bio fields.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	return c.do(ctx, http.MethodPatch, "/users/update-bio", update, nil)
}

// UserByID looks up one profile, served from a short-lived cache so repeated
// lookups while rendering do not hammer the collaborator.
func (c *Client) UserByID(ctx context.Context, id string) (models.Profile, error) {
	if p, err := c.profiles.Get(id); err == nil {
		return p, nil
	}

	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/users/"+id, nil, &p); err != nil {
		return models.Profile{}, err
	}
	c.profiles.Set(id, p)
	return p, nil
}

// do performs one request against the collaborator. Responses are always
// wrapped in a {data: ...} envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("roster: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("roster: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("roster: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("roster: %s %s returned %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("roster: decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("roster: decode data: %w", err)
	}
	return nil
}
