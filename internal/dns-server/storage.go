// Package dnsserver stores chunked stego documents and serves them as DNS
// TXT records, with an HTTP endpoint for uploads.
package dnsserver

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrChunkNotFound   = errors.New("chunk not found")
	ErrMessageExists   = errors.New("message already exists")
)

// Message is one uploaded document, split into TXT-sized chunks
type Message struct {
	ID          string            `json:"id"`
	Chunks      map[string]string `json:"chunks"` // chunk label -> encoded chunk
	TotalChunks int               `json:"total_chunks"`
	Manifest    string            `json:"manifest"`
	CreatedAt   time.Time         `json:"created_at"`
	State       MessageState      `json:"state"`
	Consumers   []ConsumerRecord  `json:"consumers"`
}

// MessageState tracks lifecycle
type MessageState int

const (
	StateNew       MessageState = iota // uploaded, never fetched
	StateDelivered                     // announced to at least one client
	StateConsumed                      // acknowledged by a client
	StateExpired
)

func (s MessageState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDelivered:
		return "delivered"
	case StateConsumed:
		return "consumed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ConsumerRecord tracks who was handed a message
type ConsumerRecord struct {
	ClientID  string    `json:"client_id"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Storage is the relay storage interface with queue semantics
type Storage interface {
	StoreMessage(msg *Message) error
	GetMessage(id string) (*Message, error)
	GetChunk(msgID, chunkName string) (string, error)

	// GetNewMessages returns unconsumed messages clientID has not been handed yet.
	GetNewMessages(clientID string) ([]*Message, error)
	MarkAsDelivered(msgID, clientID string) error
	MarkAsConsumed(msgID, clientID string) error

	ListMessages() ([]*Message, error)
	CleanExpired(ttl time.Duration) (int, error)
	GetStats() (StorageStats, error)
	Close() error
}

// StorageStats provides metrics
type StorageStats struct {
	TotalMessages int   `json:"total_messages"`
	NewMessages   int   `json:"new_messages"`
	Delivered     int   `json:"delivered"`
	Consumed      int   `json:"consumed"`
	TotalChunks   int   `json:"total_chunks"`
	TotalBytes    int64 `json:"total_bytes"`
}

func (st *StorageStats) add(msg *Message) {
	st.TotalMessages++
	st.TotalChunks += len(msg.Chunks)
	for _, c := range msg.Chunks {
		st.TotalBytes += int64(len(c))
	}
	switch msg.State {
	case StateNew:
		st.NewMessages++
	case StateDelivered:
		st.Delivered++
	case StateConsumed:
		st.Consumed++
	}
}

func (m *Message) clone() *Message {
	cp := *m
	cp.Consumers = append([]ConsumerRecord(nil), m.Consumers...)
	return &cp
}

func (m *Message) deliver(clientID string, at time.Time) {
	if m.State == StateNew {
		m.State = StateDelivered
	}
	m.Consumers = append(m.Consumers, ConsumerRecord{ClientID: clientID, FetchedAt: at})
}

// MemoryStorage keeps everything in RAM
type MemoryStorage struct {
	messages map[string]*Message
	seen     map[string]map[string]bool // clientID -> msgID set
	mu       sync.RWMutex
}

// NewMemoryStorage creates in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*Message),
		seen:     make(map[string]map[string]bool),
	}
}

func (ms *MemoryStorage) StoreMessage(msg *Message) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.messages[msg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrMessageExists, msg.ID)
	}

	stored := msg.clone()
	stored.State = StateNew
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	ms.messages[msg.ID] = stored
	return nil
}

func (ms *MemoryStorage) GetMessage(id string) (*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return msg.clone(), nil
}

func (ms *MemoryStorage) GetChunk(msgID, chunkName string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	msg, exists := ms.messages[msgID]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	data, exists := msg.Chunks[chunkName]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrChunkNotFound, chunkName)
	}
	return data, nil
}

func (ms *MemoryStorage) GetNewMessages(clientID string) ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	seen := ms.seen[clientID]
	var out []*Message
	for id, msg := range ms.messages {
		if !seen[id] && msg.State != StateConsumed {
			out = append(out, msg.clone())
		}
	}
	return out, nil
}

func (ms *MemoryStorage) MarkAsDelivered(msgID, clientID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[msgID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	msg.deliver(clientID, time.Now())

	if ms.seen[clientID] == nil {
		ms.seen[clientID] = make(map[string]bool)
	}
	ms.seen[clientID][msgID] = true
	return nil
}

func (ms *MemoryStorage) MarkAsConsumed(msgID, clientID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, exists := ms.messages[msgID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	msg.State = StateConsumed
	return nil
}

func (ms *MemoryStorage) ListMessages() ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]*Message, 0, len(ms.messages))
	for _, msg := range ms.messages {
		out = append(out, msg.clone())
	}
	return out, nil
}

func (ms *MemoryStorage) CleanExpired(ttl time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, msg := range ms.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(ms.messages, id)
			for _, seen := range ms.seen {
				delete(seen, id)
			}
			removed++
		}
	}
	return removed, nil
}

func (ms *MemoryStorage) GetStats() (StorageStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var st StorageStats
	for _, msg := range ms.messages {
		st.add(msg)
	}
	return st, nil
}

func (ms *MemoryStorage) Close() error { return nil }

// QueueManager adds consumer semantics on top of storage
type QueueManager struct {
	storage Storage
	mu      sync.Mutex
}

// NewQueueManager creates a queue manager
func NewQueueManager(storage Storage) *QueueManager {
	return &QueueManager{storage: storage}
}

// PublishMessage adds a new message to the queue
func (qm *QueueManager) PublishMessage(id string, chunks map[string]string, manifest string) error {
	return qm.storage.StoreMessage(&Message{
		ID:          id,
		Chunks:      chunks,
		TotalChunks: len(chunks),
		Manifest:    manifest,
		CreatedAt:   time.Now(),
		State:       StateNew,
	})
}

// ConsumeMessages hands clientID every message it has not seen and marks
// them delivered to it.
func (qm *QueueManager) ConsumeMessages(clientID string) ([]*Message, error) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	messages, err := qm.storage.GetNewMessages(clientID)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if err := qm.storage.MarkAsDelivered(msg.ID, clientID); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// AcknowledgeMessage marks a message as consumed
func (qm *QueueManager) AcknowledgeMessage(msgID, clientID string) error {
	return qm.storage.MarkAsConsumed(msgID, clientID)
}

// GetMessageStatus returns current state of a message
func (qm *QueueManager) GetMessageStatus(msgID string) (string, error) {
	msg, err := qm.storage.GetMessage(msgID)
	if err != nil {
		return "", err
	}

	if msg.State == StateDelivered {
		return fmt.Sprintf("delivered to %d clients", len(msg.Consumers)), nil
	}
	return msg.State.String(), nil
}
