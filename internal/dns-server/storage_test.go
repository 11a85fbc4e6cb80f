package dnsserver

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorages(t *testing.T) map[string]Storage {
	t.Helper()

	bs, err := NewBadgerStorage("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"badger": bs,
	}
}

func sampleMessage(id string) *Message {
	return &Message{
		ID: id,
		Chunks: map[string]string{
			"c-0-" + id: "AAAA",
			"c-1-" + id: "BBBBBB",
		},
		TotalChunks: 2,
		Manifest:    "2:00000000000000ff:1700000000:txt",
	}
}

func TestStorageStoreAndGet(t *testing.T) {
	for name, st := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.StoreMessage(sampleMessage("aa11")))

			msg, err := st.GetMessage("aa11")
			require.NoError(t, err)
			assert.Equal(t, StateNew, msg.State)
			assert.Equal(t, 2, msg.TotalChunks)
			assert.False(t, msg.CreatedAt.IsZero())

			chunk, err := st.GetChunk("aa11", "c-1-aa11")
			require.NoError(t, err)
			assert.Equal(t, "BBBBBB", chunk)

			_, err = st.GetChunk("aa11", "c-7-aa11")
			assert.ErrorIs(t, err, ErrChunkNotFound)
			_, err = st.GetMessage("ffff")
			assert.ErrorIs(t, err, ErrMessageNotFound)

			err = st.StoreMessage(sampleMessage("aa11"))
			assert.ErrorIs(t, err, ErrMessageExists)
		})
	}
}

func TestStoragePerClientQueue(t *testing.T) {
	for name, st := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.StoreMessage(sampleMessage("aa11")))
			require.NoError(t, st.StoreMessage(sampleMessage("bb22")))

			fresh, err := st.GetNewMessages("alice")
			require.NoError(t, err)
			assert.Len(t, fresh, 2)

			require.NoError(t, st.MarkAsDelivered("aa11", "alice"))

			fresh, err = st.GetNewMessages("alice")
			require.NoError(t, err)
			require.Len(t, fresh, 1)
			assert.Equal(t, "bb22", fresh[0].ID)

			// another client still sees both
			fresh, err = st.GetNewMessages("bob")
			require.NoError(t, err)
			assert.Len(t, fresh, 2)

			msg, err := st.GetMessage("aa11")
			require.NoError(t, err)
			assert.Equal(t, StateDelivered, msg.State)
			require.Len(t, msg.Consumers, 1)
			assert.Equal(t, "alice", msg.Consumers[0].ClientID)

			require.NoError(t, st.MarkAsConsumed("bb22", "alice"))
			fresh, err = st.GetNewMessages("bob")
			require.NoError(t, err)
			require.Len(t, fresh, 1)
			assert.Equal(t, "aa11", fresh[0].ID)

			assert.ErrorIs(t, st.MarkAsDelivered("zz99", "alice"), ErrMessageNotFound)
			assert.ErrorIs(t, st.MarkAsConsumed("zz99", "alice"), ErrMessageNotFound)
		})
	}
}

func TestStorageStatsAndCleanup(t *testing.T) {
	for name, st := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			old := sampleMessage("aa11")
			old.CreatedAt = time.Now().Add(-2 * time.Hour)
			require.NoError(t, st.StoreMessage(old))
			require.NoError(t, st.StoreMessage(sampleMessage("bb22")))
			require.NoError(t, st.MarkAsDelivered("aa11", "alice"))

			stats, err := st.GetStats()
			require.NoError(t, err)
			assert.Equal(t, StorageStats{
				TotalMessages: 2,
				NewMessages:   1,
				Delivered:     1,
				TotalChunks:   4,
				TotalBytes:    20,
			}, stats)

			removed, err := st.CleanExpired(time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			all, err := st.ListMessages()
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "bb22", all[0].ID)

			removed, err = st.CleanExpired(time.Hour)
			require.NoError(t, err)
			assert.Zero(t, removed)
		})
	}
}

func TestMemoryStorageReturnsCopies(t *testing.T) {
	st := NewMemoryStorage()
	require.NoError(t, st.StoreMessage(sampleMessage("aa11")))

	msg, err := st.GetMessage("aa11")
	require.NoError(t, err)
	msg.State = StateConsumed

	again, err := st.GetMessage("aa11")
	require.NoError(t, err)
	assert.Equal(t, StateNew, again.State)
}

func TestBadgerStoragePersists(t *testing.T) {
	dir := t.TempDir()

	bs, err := NewBadgerStorage(dir, 0)
	require.NoError(t, err)
	require.NoError(t, bs.StoreMessage(sampleMessage("aa11")))
	require.NoError(t, bs.MarkAsDelivered("aa11", "alice"))
	require.NoError(t, bs.Close())

	bs, err = NewBadgerStorage(dir, 0)
	require.NoError(t, err)
	defer bs.Close()

	msg, err := bs.GetMessage("aa11")
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, msg.State)

	fresh, err := bs.GetNewMessages("alice")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestBadgerSeenMarkerSharesMessageExpiry(t *testing.T) {
	bs, err := NewBadgerStorage("", time.Hour)
	require.NoError(t, err)
	defer bs.Close()

	require.NoError(t, bs.StoreMessage(sampleMessage("aa11")))
	require.NoError(t, bs.MarkAsDelivered("aa11", "alice"))

	err = bs.db.View(func(txn *badger.Txn) error {
		msgItem, err := txn.Get(messageKey("aa11"))
		require.NoError(t, err)
		seenItem, err := txn.Get(seenKey("alice", "aa11"))
		require.NoError(t, err)

		assert.NotZero(t, msgItem.ExpiresAt())
		assert.Equal(t, msgItem.ExpiresAt(), seenItem.ExpiresAt())
		return nil
	})
	require.NoError(t, err)
}

func TestQueueManager(t *testing.T) {
	qm := NewQueueManager(NewMemoryStorage())
	require.NoError(t, qm.PublishMessage("aa11", map[string]string{"c-0-aa11": "AA"}, "1:00:0:txt"))

	status, err := qm.GetMessageStatus("aa11")
	require.NoError(t, err)
	assert.Equal(t, "new", status)

	got, err := qm.ConsumeMessages("alice")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = qm.ConsumeMessages("alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = qm.ConsumeMessages("bob")
	require.NoError(t, err)

	status, err = qm.GetMessageStatus("aa11")
	require.NoError(t, err)
	assert.Equal(t, "delivered to 2 clients", status)

	require.NoError(t, qm.AcknowledgeMessage("aa11", "alice"))
	status, err = qm.GetMessageStatus("aa11")
	require.NoError(t, err)
	assert.Equal(t, "consumed", status)
}
