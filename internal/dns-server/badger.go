package dnsserver

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix = "msg:"
	seenPrefix    = "seen:"
)

// BadgerStorage persists messages in a Badger key-value store so the relay
// survives restarts.
//
// Layout:
//
//	msg:<id>              JSON encoded Message
//	seen:<client>:<id>    empty marker, present once <id> was handed to <client>;
//	                      expires together with msg:<id>
type BadgerStorage struct {
	db  *badger.DB
	ttl time.Duration

	// serialises read-modify-write transactions so they never conflict
	mu sync.Mutex
}

// NewBadgerStorage opens (or creates) a store at path. An empty path opens
// an in-memory store. A positive ttl makes Badger drop messages on its own.
func NewBadgerStorage(path string, ttl time.Duration) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStorage{db: db, ttl: ttl}, nil
}

func messageKey(id string) []byte { return []byte(messagePrefix + id) }

func seenKey(clientID, msgID string) []byte {
	return []byte(seenPrefix + clientID + ":" + msgID)
}

func readMessage(txn *badger.Txn, id string) (*Message, uint64, error) {
	item, err := txn.Get(messageKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, 0, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if err != nil {
		return nil, 0, err
	}

	var msg Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("corrupt message %s: %w", id, err)
	}
	return &msg, item.ExpiresAt(), nil
}

func writeMessage(txn *badger.Txn, msg *Message, expiresAt uint64) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	e := badger.NewEntry(messageKey(msg.ID), data)
	e.ExpiresAt = expiresAt
	return txn.SetEntry(e)
}

func (bs *BadgerStorage) StoreMessage(msg *Message) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	stored := msg.clone()
	stored.State = StateNew
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(messageKey(msg.ID))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrMessageExists, msg.ID)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		var expiresAt uint64
		if bs.ttl > 0 {
			expiresAt = uint64(stored.CreatedAt.Add(bs.ttl).Unix())
		}
		return writeMessage(txn, stored, expiresAt)
	})
}

func (bs *BadgerStorage) GetMessage(id string) (*Message, error) {
	var msg *Message
	err := bs.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = readMessage(txn, id)
		return err
	})
	return msg, err
}

func (bs *BadgerStorage) GetChunk(msgID, chunkName string) (string, error) {
	msg, err := bs.GetMessage(msgID)
	if err != nil {
		return "", err
	}
	data, ok := msg.Chunks[chunkName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrChunkNotFound, chunkName)
	}
	return data, nil
}

// scan decodes every stored message in key order
func (bs *BadgerStorage) scan(txn *badger.Txn, fn func(*Message) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := []byte(messagePrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var msg Message
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		})
		if err != nil {
			return fmt.Errorf("corrupt entry %s: %w", it.Item().Key(), err)
		}
		if err := fn(&msg); err != nil {
			return err
		}
	}
	return nil
}

func (bs *BadgerStorage) GetNewMessages(clientID string) ([]*Message, error) {
	var out []*Message
	err := bs.db.View(func(txn *badger.Txn) error {
		return bs.scan(txn, func(msg *Message) error {
			if msg.State == StateConsumed {
				return nil
			}
			_, err := txn.Get(seenKey(clientID, msg.ID))
			if err == badger.ErrKeyNotFound {
				out = append(out, msg)
				return nil
			}
			return err
		})
	})
	return out, err
}

// update rewrites a message in place. fn receives the message's expiry so
// companion keys can share it.
func (bs *BadgerStorage) update(msgID string, fn func(txn *badger.Txn, msg *Message, expiresAt uint64) error) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	return bs.db.Update(func(txn *badger.Txn) error {
		msg, expiresAt, err := readMessage(txn, msgID)
		if err != nil {
			return err
		}
		if err := fn(txn, msg, expiresAt); err != nil {
			return err
		}
		return writeMessage(txn, msg, expiresAt)
	})
}

func (bs *BadgerStorage) MarkAsDelivered(msgID, clientID string) error {
	return bs.update(msgID, func(txn *badger.Txn, msg *Message, expiresAt uint64) error {
		msg.deliver(clientID, time.Now())
		e := badger.NewEntry(seenKey(clientID, msgID), nil)
		e.ExpiresAt = expiresAt
		return txn.SetEntry(e)
	})
}

func (bs *BadgerStorage) MarkAsConsumed(msgID, clientID string) error {
	return bs.update(msgID, func(_ *badger.Txn, msg *Message, _ uint64) error {
		msg.State = StateConsumed
		return nil
	})
}

func (bs *BadgerStorage) ListMessages() ([]*Message, error) {
	var out []*Message
	err := bs.db.View(func(txn *badger.Txn) error {
		return bs.scan(txn, func(msg *Message) error {
			out = append(out, msg)
			return nil
		})
	})
	return out, err
}

func (bs *BadgerStorage) CleanExpired(ttl time.Duration) (int, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	expired := make(map[string]bool)
	var seenKeys [][]byte

	err := bs.db.View(func(txn *badger.Txn) error {
		err := bs.scan(txn, func(msg *Message) error {
			if msg.CreatedAt.Before(cutoff) {
				expired[msg.ID] = true
			}
			return nil
		})
		if err != nil || len(expired) == 0 {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(seenPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			idx := strings.LastIndexByte(string(key), ':')
			if idx >= 0 && expired[string(key[idx+1:])] {
				seenKeys = append(seenKeys, key)
			}
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		for id := range expired {
			if err := txn.Delete(messageKey(id)); err != nil {
				return err
			}
		}
		for _, key := range seenKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (bs *BadgerStorage) GetStats() (StorageStats, error) {
	var st StorageStats
	err := bs.db.View(func(txn *badger.Txn) error {
		return bs.scan(txn, func(msg *Message) error {
			st.add(msg)
			return nil
		})
	})
	return st, err
}

func (bs *BadgerStorage) Close() error {
	return bs.db.Close()
}
