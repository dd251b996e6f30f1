package store

import (
	"strings"
	"testing"

	"whatube/internal/models"
)

func textMsg(id, from, body string) models.Message {
	return models.Message{ID: id, From: from, Kind: models.KindText, Body: body, At: "09:14"}
}

func TestUpsertIncoming_UnknownSender(t *testing.T) {
	s := New()

	s.UpsertIncoming("stranger", textMsg("m1", "stranger", "hello?"))

	c, ok := s.Conversation("stranger")
	if !ok {
		t.Fatal("conversation not created for unknown sender")
	}
	if c.DisplayName != "stranger" {
		t.Errorf("expected peer id as fallback display name, got %q", c.DisplayName)
	}
	if c.UnreadCount != 1 {
		t.Errorf("expected unread 1, got %d", c.UnreadCount)
	}
	if len(s.Get("stranger")) != 1 {
		t.Errorf("expected 1 message in log")
	}
}

func TestUnreadSuppressionForActiveChat(t *testing.T) {
	s := New()
	s.SetActive("peer1")

	for i := 0; i < 3; i++ {
		s.UpsertIncoming("peer1", textMsg("m", "peer1", "hi"))
	}

	c, _ := s.Conversation("peer1")
	if c.UnreadCount != 0 {
		t.Errorf("active conversation must stay at 0 unread, got %d", c.UnreadCount)
	}
}

func TestUnreadAccumulationAndReset(t *testing.T) {
	s := New()
	s.SetActive("other")

	for i := 0; i < 3; i++ {
		s.UpsertIncoming("peer1", textMsg("m", "peer1", "hi"))
	}

	c, _ := s.Conversation("peer1")
	if c.UnreadCount != 3 {
		t.Fatalf("expected unread 3, got %d", c.UnreadCount)
	}

	s.SetActive("peer1")
	c, _ = s.Conversation("peer1")
	if c.UnreadCount != 0 {
		t.Errorf("SetActive must reset unread, got %d", c.UnreadCount)
	}
}

func TestSeedMergePreservesCounters(t *testing.T) {
	s := New()
	seed := []models.Conversation{{ID: "peer1", DisplayName: "Aarav", Subtitle: "Online"}}
	s.Seed(seed)

	s.SetActive("other")
	s.UpsertIncoming("peer1", textMsg("m1", "peer1", "one"))
	s.UpsertIncoming("peer1", textMsg("m2", "peer1", "two"))

	// Reseed with refreshed presentation fields.
	s.Seed([]models.Conversation{{ID: "peer1", DisplayName: "Aarav K", Subtitle: "Away", IsOnline: true}})

	c, _ := s.Conversation("peer1")
	if c.UnreadCount != 2 {
		t.Errorf("reseed must preserve unread, got %d", c.UnreadCount)
	}
	if c.LastMessagePreview != "two" {
		t.Errorf("reseed must preserve preview, got %q", c.LastMessagePreview)
	}
	if c.DisplayName != "Aarav K" || c.Subtitle != "Away" || !c.IsOnline {
		t.Errorf("presentation fields not refreshed: %+v", c)
	}
	if len(s.Get("peer1")) != 2 {
		t.Errorf("reseed must preserve the log")
	}
}

func TestSeedKeepsUnlistedConversations(t *testing.T) {
	s := New()
	s.UpsertIncoming("stranger", textMsg("m1", "stranger", "hello"))

	s.Seed([]models.Conversation{{ID: "peer1", DisplayName: "Aarav"}})

	if _, ok := s.Conversation("stranger"); !ok {
		t.Error("seed must not drop conversations created by unknown senders")
	}
}

func TestAppendOnlyOrdering(t *testing.T) {
	s := New()

	s.AppendOutgoing("peer1", textMsg("m1", "me", "hello"))
	s.AppendOutgoing("peer1", textMsg("m2", "me", "world"))
	s.UpsertIncoming("peer1", textMsg("m3", "peer1", "hey"))

	log := s.Get("peer1")
	if len(log) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(log))
	}
	want := []string{"hello", "world", "hey"}
	for i, w := range want {
		if log[i].Body != w {
			t.Errorf("index %d: expected %q, got %q", i, w, log[i].Body)
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	s.AppendOutgoing("peer1", textMsg("m1", "me", "hello"))

	log := s.Get("peer1")
	log[0].Body = "tampered"

	if s.Get("peer1")[0].Body != "hello" {
		t.Error("Get must return a copy of the log")
	}
}

func TestOutgoingDoesNotTouchUnread(t *testing.T) {
	s := New()
	s.SetActive("other")

	s.AppendOutgoing("peer1", textMsg("m1", "me", "hello"))

	c, _ := s.Conversation("peer1")
	if c.UnreadCount != 0 {
		t.Errorf("outgoing messages must not affect unread, got %d", c.UnreadCount)
	}
}

func TestPreviewTruncatedThroughStore(t *testing.T) {
	s := New()
	s.UpsertIncoming("peer1", textMsg("m1", "peer1", strings.Repeat("a", 80)))

	c, _ := s.Conversation("peer1")
	if c.LastMessagePreview != strings.Repeat("a", 50)+"..." {
		t.Errorf("unexpected preview %q", c.LastMessagePreview)
	}
}

func TestConversationsOrder(t *testing.T) {
	s := New()
	s.Seed([]models.Conversation{
		{ID: "a", DisplayName: "Alpha"},
		{ID: "b", DisplayName: "Beta", IsPinned: true},
		{ID: "c", DisplayName: "Gamma"},
	})
	s.UpsertIncoming("c", textMsg("m1", "c", "latest"))

	got := s.Conversations()
	if got[0].ID != "b" {
		t.Errorf("pinned conversation must sort first, got %s", got[0].ID)
	}
	if got[1].ID != "c" {
		t.Errorf("most recently active must follow pinned, got %s", got[1].ID)
	}
}

func TestChangeNotifications(t *testing.T) {
	s := New()
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	s.Seed([]models.Conversation{{ID: "peer1", DisplayName: "Aarav"}})
	s.UpsertIncoming("peer1", textMsg("m1", "peer1", "hi"))
	s.AppendOutgoing("peer1", textMsg("m2", "me", "hello"))
	s.SetActive("peer1")

	want := []ChangeKind{ChangeSeed, ChangeIncoming, ChangeOutgoing, ChangeActiveSwitch}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %d", len(want), len(changes))
	}
	for i, k := range want {
		if changes[i].Kind != k {
			t.Errorf("change %d: expected %s, got %s", i, k, changes[i].Kind)
		}
	}
	if changes[1].Message == nil || changes[1].Message.Body != "hi" {
		t.Error("incoming change must carry the message")
	}
}

func TestWarmRestoresWithoutUnread(t *testing.T) {
	s := New()
	s.Warm(
		models.Conversation{ID: "peer1", DisplayName: "Aarav", LastMessagePreview: "old"},
		[]models.Message{textMsg("m1", "peer1", "old")},
	)

	c, _ := s.Conversation("peer1")
	if c.UnreadCount != 0 {
		t.Errorf("warmed conversations start read, got %d", c.UnreadCount)
	}
	if len(s.Get("peer1")) != 1 {
		t.Error("warmed log missing")
	}
}
