package history

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"whatube/internal/models"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBConversation struct {
	ID           string `msgpack:"id"`
	DisplayName  string `msgpack:"displayName"`
	Subtitle     string `msgpack:"subtitle"`
	LastActiveAt string `msgpack:"lastActiveAt"`
	Preview      string `msgpack:"preview"`
	IsOnline     bool   `msgpack:"isOnline"`
	IsPinned     bool   `msgpack:"isPinned"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

func (c *DBConversation) toModel() models.Conversation {
	return models.Conversation{
		ID:                 c.ID,
		DisplayName:        c.DisplayName,
		Subtitle:           c.Subtitle,
		LastActiveAt:       c.LastActiveAt,
		LastMessagePreview: c.Preview,
		IsOnline:           c.IsOnline,
		IsPinned:           c.IsPinned,
	}
}

func fromConversation(c models.Conversation) *DBConversation {
	return &DBConversation{
		ID:           c.ID,
		DisplayName:  c.DisplayName,
		Subtitle:     c.Subtitle,
		LastActiveAt: c.LastActiveAt,
		Preview:      c.LastMessagePreview,
		IsOnline:     c.IsOnline,
		IsPinned:     c.IsPinned,
	}
}

type DBMessage struct {
	Seq          uint64 `msgpack:"seq"`
	ID           string `msgpack:"id"`
	From         string `msgpack:"from"`
	Kind         string `msgpack:"kind"`
	Body         string `msgpack:"body"`
	AltText      string `msgpack:"altText"`
	ContentRef   string `msgpack:"contentRef"`
	Glyph        string `msgpack:"glyph"`
	At           string `msgpack:"at"`
	SenderName   string `msgpack:"senderName"`
	SenderAvatar string `msgpack:"senderAvatar"`
	Delivery     string `msgpack:"delivery"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) toModel() models.Message {
	return models.Message{
		ID:                   m.ID,
		From:                 m.From,
		Kind:                 models.Kind(m.Kind),
		Body:                 m.Body,
		AltText:              m.AltText,
		ContentRef:           m.ContentRef,
		Glyph:                m.Glyph,
		At:                   m.At,
		SenderDisplayName:    m.SenderName,
		SenderAvatarInitials: m.SenderAvatar,
		Delivery:             models.DeliveryState(m.Delivery),
	}
}

func fromMessage(m models.Message) *DBMessage {
	return &DBMessage{
		ID:           m.ID,
		From:         m.From,
		Kind:         string(m.Kind),
		Body:         m.Body,
		AltText:      m.AltText,
		ContentRef:   m.ContentRef,
		Glyph:        m.Glyph,
		At:           m.At,
		SenderName:   m.SenderDisplayName,
		SenderAvatar: m.SenderAvatarInitials,
		Delivery:     string(m.Delivery),
	}
}
