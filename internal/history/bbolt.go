// Package history is the local message cache: conversations and logs
// persisted across client restarts. It warms the conversation store at
// session start and is written behind the store's change notifications;
// it never feeds back into unread accounting.
package history

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"whatube/internal/models"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
)

// maxMessagesPerPeer bounds the on-disk log per conversation; the oldest
// entries are pruned once the cap is exceeded.
const maxMessagesPerPeer = 500

type Cache struct {
	db *bbolt.DB
}

func NewCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// UpsertConversation saves one conversation snapshot. Unread counters are
// deliberately not persisted; every restart begins read.
func (c *Cache) UpsertConversation(conversation models.Conversation) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		dbConv := fromConversation(conversation)
		data, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbConv.Key(), data)
	})
}

// ListConversations returns all cached conversations.
func (c *Cache) ListConversations() ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conversations = append(conversations, dbConv.toModel())
			return nil
		})
	})
	return conversations, err
}

// AppendMessage appends one message to a peer's cached log, pruning the
// oldest entries beyond maxMessagesPerPeer.
func (c *Cache) AppendMessage(peerID string, message models.Message) error {
	if peerID == "" {
		return fmt.Errorf("message missing peer id")
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		mainBucket := tx.Bucket(bucketMessages)
		peerBucket, err := mainBucket.CreateBucketIfNotExists([]byte(peerID))
		if err != nil {
			return fmt.Errorf("failed to create peer bucket: %w", err)
		}

		seq, err := peerBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		dbMsg := fromMessage(message)
		dbMsg.Seq = seq

		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := peerBucket.Put(dbMsg.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		// Prune oldest entries beyond the cap.
		cursor := peerBucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.First() {
			first := binary.BigEndian.Uint64(k)
			if seq-first < maxMessagesPerPeer {
				break
			}
			if err := peerBucket.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// ListMessages returns a peer's cached log in append order.
func (c *Cache) ListMessages(peerID string) ([]models.Message, error) {
	var messages []models.Message
	err := c.db.View(func(tx *bbolt.Tx) error {
		peerBucket := tx.Bucket(bucketMessages).Bucket([]byte(peerID))
		if peerBucket == nil {
			return nil
		}
		return peerBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
			return nil
		})
	})
	return messages, err
}
