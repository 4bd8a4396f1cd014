package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/models"
)

// queueMessage is the internal envelope stored in Badger
type queueMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
	DedupID      string              `json:"dedup_id,omitempty"`
}

// Delivery is one at-least-once delivery of a queue message. Exactly one of
// Ack or Nack must be called. Ack moves the message into the terminal
// retention keyspace; Nack reschedules it with delay = baseDelay * attempt.
type Delivery struct {
	Msg     models.QueueMessage
	Attempt int // 1-based delivery count

	Ack  func() error
	Nack func() error
}

// BadgerManager implements a persistent queue on BadgerDB.
//
// Key layout under queue:{name}:
//
//	msg:{id}               message envelope (JSON)
//	index:{visibleAt}:{id} visibility index, timestamp zero-padded so
//	                       lexicographic order matches delivery order
//	dedup:{dedupId}        pending/active coalescing marker -> message id
//	done:{finishedAt}:{id} terminal messages kept for the retention window
type BadgerManager struct {
	db     *badger.DB
	config Config
	logger arbor.ILogger
}

// NewBadgerManager creates a Badger-backed queue manager. The DB lifecycle is
// managed externally.
func NewBadgerManager(db *badger.DB, config Config, logger arbor.ILogger) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = DefaultConfig().VisibilityTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}

	return &BadgerManager{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// Enqueue adds a message to the queue. A non-empty dedupID coalesces repeat
// submissions: while a message with the same dedupID is pending or active the
// enqueue is a no-op.
func (m *BadgerManager) Enqueue(ctx context.Context, msg models.QueueMessage, dedupID string) error {
	id := uuid.New().String()
	now := time.Now()

	qMsg := queueMessage{
		ID:           id,
		Body:         msg,
		EnqueuedAt:   now,
		VisibleAt:    now, // Immediately visible
		ReceiveCount: 0,
		DedupID:      dedupID,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if dedupID != "" {
			_, err := txn.Get(m.dedupKey(dedupID))
			if err == nil {
				m.logger.Debug().
					Str("dedup_id", dedupID).
					Str("job_id", msg.JobID).
					Msg("Enqueue coalesced onto pending message")
				return nil
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
			if err := txn.Set(m.dedupKey(dedupID), []byte(id)); err != nil {
				return err
			}
		}

		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{})
	})
}

// Receive pulls the next visible message from the queue. Returns
// models.ErrNoMessage when nothing is ready. A claimed message becomes
// invisible for the visibility timeout; an unacked crash therefore redelivers.
func (m *BadgerManager) Receive(ctx context.Context) (*Delivery, error) {
	var qMsg queueMessage
	var msgID string
	var oldIndexKey []byte

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.config.QueueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue // Skip invalid keys
			}

			if ts.After(now) {
				// Index keys sort by timestamp: nothing later is ready either
				break
			}

			itemMsg, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Dangling index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := itemMsg.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			// Poison-pill guard: messages that already consumed their attempt
			// budget are parked terminally instead of redelivered forever.
			if qMsg.ReceiveCount >= m.config.MaxAttempts {
				if err := m.moveToDone(txn, key, &qMsg); err != nil {
					return err
				}
				m.logger.Warn().
					Str("message_id", qMsg.ID).
					Str("job_id", qMsg.Body.JobID).
					Int("receive_count", qMsg.ReceiveCount).
					Msg("Message exceeded max attempts, parked")
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return models.ErrNoMessage
		}

		// Claim: bump receive count, push visibility out
		qMsg.ReceiveCount++
		qMsg.VisibleAt = time.Now().Add(m.config.VisibilityTimeout)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, err
	}

	attempt := qMsg.ReceiveCount

	return &Delivery{
		Msg:     qMsg.Body,
		Attempt: attempt,
		Ack:     func() error { return m.ack(msgID) },
		Nack:    func() error { return m.nack(msgID, attempt) },
	}, nil
}

// ack moves the message into the done keyspace for bounded retention
func (m *BadgerManager) ack(msgID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(msgID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already removed
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		return m.moveToDone(txn, m.indexKey(qMsg.VisibleAt, msgID), &qMsg)
	})
}

// nack reschedules the message with exponential backoff:
// visible again after baseDelay * attempt.
func (m *BadgerManager) nack(msgID string, attempt int) error {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.config.BaseDelay * time.Duration(attempt)

	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(msgID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var qMsg queueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldIndexKey := m.indexKey(qMsg.VisibleAt, msgID)
		qMsg.VisibleAt = time.Now().Add(delay)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, msgID), []byte{})
	})
}

// moveToDone removes the live msg/index/dedup keys and parks the envelope in
// the done keyspace, stamped with the completion time for retention purging.
func (m *BadgerManager) moveToDone(txn *badger.Txn, indexKey []byte, qMsg *queueMessage) error {
	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(m.msgKey(qMsg.ID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if qMsg.DedupID != "" {
		if err := txn.Delete(m.dedupKey(qMsg.DedupID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return err
	}
	return txn.Set(m.doneKey(time.Now(), qMsg.ID), data)
}

// PurgeDone deletes terminal messages finished before the cutoff. Returns the
// number of messages removed.
func (m *BadgerManager) PurgeDone(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	prefix := []byte(fmt.Sprintf("queue:%s:done:", m.config.QueueName))

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var expired [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts, _, err := m.parseTimestampedKey(key, fmt.Sprintf("queue:%s:done:", m.config.QueueName))
			if err != nil {
				continue
			}
			if ts.After(cutoff) {
				// Done keys sort by completion time
				break
			}
			expired = append(expired, key)
		}

		for _, key := range expired {
			if err := txn.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return nil
	})

	return purged, err
}

// PendingCount returns the number of live (pending or in-flight) messages
func (m *BadgerManager) PendingCount(ctx context.Context) (int, error) {
	count := 0
	prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.config.QueueName))

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// Key helpers

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.config.QueueName, id))
}

func (m *BadgerManager) dedupKey(dedupID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dedup:%s", m.config.QueueName, dedupID))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.config.QueueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) doneKey(finishedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:done:%020d:%s", m.config.QueueName, finishedAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	return m.parseTimestampedKey(key, fmt.Sprintf("queue:%s:index:", m.config.QueueName))
}

func (m *BadgerManager) parseTimestampedKey(key []byte, prefix string) (time.Time, string, error) {
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	// Suffix is "{20-digit-ts}:{id}"
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
