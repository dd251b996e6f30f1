package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Kind discriminates the message variants. Every switch over Kind must
// handle all three values.
type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindSticker Kind = "sticker"
)

// DeliveryState records what happened to an outgoing message at emit time.
// Incoming messages are always DeliverySent. The wire protocol has no
// acknowledgment event, so there is no later transition out of these states.
type DeliveryState string

const (
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"
)

// Message is one entry in a conversation log. From holds an actual user
// identity, never a "me"/"them" marker. Sender presentation fields are
// captured when the message is created and never refreshed, so they stay
// historically accurate even if the sender later renames.
type Message struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Kind Kind   `json:"kind"`

	// Body is set for text messages.
	Body string `json:"body,omitempty"`
	// AltText and ContentRef are set for image messages. ContentRef is a
	// client-local handle; persistent media transport is the server's concern.
	AltText    string `json:"altText,omitempty"`
	ContentRef string `json:"contentRef,omitempty"`
	// Glyph is set for sticker messages.
	Glyph string `json:"glyph,omitempty"`

	// At is a display timestamp assigned at send or receipt time. Logs are
	// ordered by arrival, never by At.
	At string `json:"at"`

	SenderDisplayName    string `json:"senderDisplayName,omitempty"`
	SenderAvatarInitials string `json:"senderAvatarInitials,omitempty"`

	Delivery DeliveryState `json:"delivery,omitempty"`
}

// Conversation is one entry in the sidebar, keyed by the peer's identity.
type Conversation struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	Subtitle           string `json:"subtitle,omitempty"`
	LastActiveAt       string `json:"lastActiveAt"`
	UnreadCount        int    `json:"unreadCount"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
	IsOnline           bool   `json:"isOnline"`
	IsPinned           bool   `json:"isPinned"`
}

// Profile describes a user as the roster service reports them.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	DisplayName    string `json:"name"`
	Email          string `json:"email,omitempty"`
	Bio            string `json:"bio,omitempty"`
	AvatarInitials string `json:"initial,omitempty"`
}

// FriendRequest is a pending incoming request from the roster service.
type FriendRequest struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	Username string `json:"username"`
	Name     string `json:"name"`
	SentAt   string `json:"sentAt,omitempty"`
}

// Wire event names exchanged with the message bus.
const (
	EventJoin            = "join"
	EventPersonalMessage = "personalMessage"
	EventReceiveMessage  = "receiveMessage"
	EventNotification    = "notification"
)

// JoinEvent announces the local identity once per successful connect so the
// bus can route directed sends to this session.
type JoinEvent struct {
	UserID string `json:"userId"`
}

// PersonalMessageEvent is an outbound directed send.
type PersonalMessageEvent struct {
	To           string `json:"to"`
	Messages     string `json:"messages"`
	SenderName   string `json:"senderName"`
	SenderAvatar string `json:"senderAvatar"`
}

// ReceiveMessageEvent is an inbound directed message.
type ReceiveMessageEvent struct {
	From         string `json:"from"`
	Messages     string `json:"messages"`
	SenderName   string `json:"senderName"`
	SenderAvatar string `json:"senderAvatar"`
}

// Stickers is the fixed catalog offered by the composer.
var Stickers = []string{"👋", "😄", "🫶", "🔥", "😂", "😎", "⭐", "🚀"}
