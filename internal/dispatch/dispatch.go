// Package dispatch translates send intents into optimistic store appends plus
// outbound wire events, and reconciles inbound events into the store.
package dispatch

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"whatube/internal/content"
	"whatube/internal/media"
	"whatube/internal/models"
	"whatube/internal/store"
)

// Emitter is the outbound surface of the bus client. Send reports whether
// the event actually left the client; a false return means the payload was
// dropped.
type Emitter interface {
	Send(event string, payload any) bool
}

// File is an attachment picked by the composer.
type File struct {
	Name string
	Data []byte
}

type Dispatcher struct {
	store *store.Store
	bus   Emitter
	media media.Store

	local models.Profile
	now   func() time.Time

	// OnNotification forwards out-of-band notices to interested UI; the
	// dispatcher itself only logs them.
	OnNotification func(data json.RawMessage)
}

// New creates a dispatcher sending on behalf of the given local profile.
// mediaStore may be nil; image refs then fall back to the file name.
func New(s *store.Store, bus Emitter, mediaStore media.Store, local models.Profile) *Dispatcher {
	return &Dispatcher{
		store: s,
		bus:   bus,
		media: mediaStore,
		local: local,
		now:   time.Now,
	}
}

// Submit turns the composer state into zero or one text message and one
// image message per attached file. A call with an empty draft and no files
// is a no-op. Each message is appended to the store first and emitted
// after: the append is optimistic and never waits for the server.
func (d *Dispatcher) Submit(activeID, draft string, files []File) {
	if activeID == "" {
		return
	}

	text := strings.TrimSpace(draft)
	if text == "" && len(files) == 0 {
		return
	}

	if text != "" {
		msg := d.newMessage(models.KindText)
		msg.Body = text
		d.deliver(activeID, msg, text)
	}

	for _, f := range files {
		if !filetype.IsImage(f.Data) {
			log.Printf("dispatch: skipping non-image attachment %q", f.Name)
			continue
		}
		msg := d.newMessage(models.KindImage)
		msg.AltText = f.Name
		msg.ContentRef = d.saveMedia(f)
		d.deliver(activeID, msg, msg.ContentRef)
	}
}

// SendSticker sends a single sticker message, bypassing the draft.
func (d *Dispatcher) SendSticker(activeID, glyph string) {
	if activeID == "" || glyph == "" {
		return
	}

	msg := d.newMessage(models.KindSticker)
	msg.Glyph = glyph
	d.deliver(activeID, msg, glyph)
}

// HandleReceiveMessage reconciles one inbound directed message into the
// store. Events missing the sender identity are discarded, never partially
// applied.
func (d *Dispatcher) HandleReceiveMessage(data json.RawMessage) {
	var ev models.ReceiveMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("dispatch: discarding malformed receiveMessage: %v", err)
		return
	}
	if ev.From == "" {
		log.Printf("dispatch: discarding receiveMessage without sender")
		return
	}

	msg := models.Message{
		ID:                   uuid.NewString(),
		From:                 ev.From,
		Kind:                 models.KindText,
		Body:                 content.Sanitize(ev.Messages),
		At:                   d.displayTime(),
		SenderDisplayName:    content.Sanitize(ev.SenderName),
		SenderAvatarInitials: content.Sanitize(ev.SenderAvatar),
		Delivery:             models.DeliverySent,
	}
	d.store.UpsertIncoming(ev.From, msg)
}

// HandleNotification logs an out-of-band notice and forwards it unparsed;
// the payload shape belongs to the collaborator.
func (d *Dispatcher) HandleNotification(data json.RawMessage) {
	log.Printf("dispatch: notification received")
	if d.OnNotification != nil {
		d.OnNotification(data)
	}
}

// deliver appends optimistically and then emits, tagging the message with
// the observed delivery outcome.
func (d *Dispatcher) deliver(activeID string, msg models.Message, wireBody string) {
	d.store.AppendOutgoing(activeID, msg)

	sent := d.bus.Send(models.EventPersonalMessage, models.PersonalMessageEvent{
		To:           activeID,
		Messages:     wireBody,
		SenderName:   d.local.DisplayName,
		SenderAvatar: d.local.AvatarInitials,
	})

	state := models.DeliverySent
	if !sent {
		state = models.DeliveryFailed
	}
	d.store.SetDelivery(activeID, msg.ID, state)
}

func (d *Dispatcher) saveMedia(f File) string {
	if d.media == nil {
		return f.Name
	}
	ref, err := d.media.Save(bytes.NewReader(f.Data))
	if err != nil {
		log.Printf("dispatch: failed to store attachment %q: %v", f.Name, err)
		return f.Name
	}
	return ref
}

func (d *Dispatcher) newMessage(kind models.Kind) models.Message {
	return models.Message{
		ID:                   uuid.NewString(),
		From:                 d.local.ID,
		Kind:                 kind,
		At:                   d.displayTime(),
		SenderDisplayName:    d.local.DisplayName,
		SenderAvatarInitials: d.local.AvatarInitials,
		Delivery:             models.DeliveryPending,
	}
}

func (d *Dispatcher) displayTime() string {
	return d.now().Format("15:04")
}
