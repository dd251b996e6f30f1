// Package presence derives presentation annotations from the conversation
// store: message previews, unread totals and active-chat checks. It keeps no
// state of its own so there is exactly one source of truth.
package presence

import (
	"whatube/internal/models"
)

const previewLimit = 50

const (
	imagePlaceholder   = "📷 Image"
	stickerPlaceholder = "✨ Sticker"
)

// Preview renders the sidebar preview line for a message. Text bodies are
// capped at previewLimit visible characters with a trailing ellipsis; media
// kinds get a placeholder label.
func Preview(m models.Message) string {
	switch m.Kind {
	case models.KindText:
		return Truncate(m.Body)
	case models.KindImage:
		return imagePlaceholder
	case models.KindSticker:
		return stickerPlaceholder
	}
	return ""
}

// Truncate caps s at previewLimit runes, appending "..." when cut.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "..."
}

// StoreView is the read surface the tracker needs from the conversation
// store.
type StoreView interface {
	Conversations() []models.Conversation
	ActiveID() string
}

// Tracker exposes derived read-only views over a conversation store.
type Tracker struct {
	store StoreView
}

func NewTracker(store StoreView) *Tracker {
	return &Tracker{store: store}
}

// TotalUnread sums unread counters across all conversations.
func (t *Tracker) TotalUnread() int {
	total := 0
	for _, c := range t.store.Conversations() {
		total += c.UnreadCount
	}
	return total
}

// IsActiveChat reports whether the given peer's conversation is the one
// currently in focus.
func (t *Tracker) IsActiveChat(peerID string) bool {
	return peerID != "" && t.store.ActiveID() == peerID
}
