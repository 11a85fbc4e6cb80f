package relay

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faanross/simulacra_doc/internal/chunker"
	dnsserver "github.com/faanross/simulacra_doc/internal/dns-server"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "covert.test"

type testRelay struct {
	srv       *dnsserver.Server
	dnsAddr   string
	uploadURL string
}

// startRelay runs a relay on loopback UDP and an httptest server
func startRelay(t *testing.T) *testRelay {
	t.Helper()

	logger := quietLogger()
	srv := dnsserver.NewServer(testDomain, dnsserver.NewMemoryStorage(), logger)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	ds := &dns.Server{PacketConn: pc, Handler: srv, NotifyStartedFunc: func() { close(started) }}
	go ds.ActivateAndServe()
	<-started
	t.Cleanup(func() { ds.Shutdown() })

	hs := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(hs.Close)

	return &testRelay{srv: srv, dnsAddr: pc.LocalAddr().String(), uploadURL: hs.URL + "/upload"}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func (tr *testRelay) receiver(progress func(done, total int)) *Receiver {
	return NewReceiver(ReceiverConfig{
		Server:      tr.dnsAddr,
		Domain:      testDomain,
		Concurrency: 4,
		Retries:     1,
		RetryDelay:  10 * time.Millisecond,
		Timeout:     2 * time.Second,
		Logger:      quietLogger(),
		Progress:    progress,
	})
}

func randomDocument(n int) []byte {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, n)
	rng.Read(data)
	return data
}

func TestPrepare(t *testing.T) {
	data := randomDocument(1000)
	pkg, err := Prepare(data, ".docx", testDomain, chunker.ChunkerConfig{Encoding: chunker.ENCODE_BASE32})
	require.NoError(t, err)

	// 1000 bytes at 127 payload bytes per base32 chunk
	assert.Len(t, pkg.Request.Chunks, 8)
	assert.Equal(t, pkg.Manifest.MessageID, pkg.Request.MessageID)
	assert.Equal(t, "docx", pkg.Manifest.Ext)
	assert.True(t, pkg.Manifest.Verify(data))
	for name := range pkg.Request.Chunks {
		assert.True(t, strings.HasSuffix(name, ".data."+testDomain), name)
	}

	_, err = Prepare(nil, "txt", testDomain, chunker.ChunkerConfig{})
	assert.Error(t, err)
}

func TestUploadAndRetrieve(t *testing.T) {
	tr := startRelay(t)
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
		cfg  chunker.ChunkerConfig
	}{
		{"base32 binary", randomDocument(3000), chunker.ChunkerConfig{Encoding: chunker.ENCODE_BASE32}},
		{"hex binary", randomDocument(700), chunker.ChunkerConfig{Encoding: chunker.ENCODE_HEX}},
		{"compressed text", bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200),
			chunker.ChunkerConfig{Encoding: chunker.ENCODE_BASE32, Compression: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := Prepare(tt.data, "txt", testDomain, tt.cfg)
			require.NoError(t, err)

			up := NewUploader(UploaderConfig{URL: tr.uploadURL, Logger: quietLogger()})
			resp, err := up.Upload(ctx, pkg)
			require.NoError(t, err)
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, len(pkg.Request.Chunks), resp.Chunks)

			var mu sync.Mutex
			var calls []int
			rcv := tr.receiver(func(done, total int) {
				mu.Lock()
				calls = append(calls, done)
				mu.Unlock()
			})

			got, err := rcv.Retrieve(ctx, pkg.Request.MessageID)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got.Data)
			assert.Equal(t, "txt", got.Manifest.Ext)
			assert.Equal(t, len(pkg.Request.Chunks), got.Chunks)
			assert.Len(t, calls, got.Chunks)
		})
	}
}

func TestUploadRejected(t *testing.T) {
	tr := startRelay(t)
	ctx := context.Background()

	pkg, err := Prepare([]byte("duplicate me"), "txt", testDomain, chunker.ChunkerConfig{})
	require.NoError(t, err)

	up := NewUploader(UploaderConfig{URL: tr.uploadURL, Retries: 3, RetryDelay: time.Millisecond, Logger: quietLogger()})
	_, err = up.Upload(ctx, pkg)
	require.NoError(t, err)

	_, err = up.Upload(ctx, pkg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"success","message_id":"abc","chunks":1}`)
	}))
	defer ts.Close()

	pkg, err := Prepare([]byte("retry"), "txt", testDomain, chunker.ChunkerConfig{})
	require.NoError(t, err)

	up := NewUploader(UploaderConfig{URL: ts.URL, Retries: 3, RetryDelay: time.Millisecond, Logger: quietLogger()})
	resp, err := up.Upload(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.MessageID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetrieveMissingMessage(t *testing.T) {
	tr := startRelay(t)

	_, err := tr.receiver(nil).Retrieve(context.Background(), "0123456789abcdef")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRetrieveChecksumMismatch(t *testing.T) {
	tr := startRelay(t)
	ctx := context.Background()

	pkg, err := Prepare(randomDocument(300), "txt", testDomain, chunker.ChunkerConfig{})
	require.NoError(t, err)

	// manifest vouches for different content
	pkg.Manifest.Checksum = chunker.DocumentChecksum([]byte("something else"))
	pkg.Request.Manifest = pkg.Manifest.Value()
	require.NoError(t, tr.srv.Publish(pkg.Request))

	_, err = tr.receiver(nil).Retrieve(ctx, pkg.Request.MessageID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestCheckNewAndAck(t *testing.T) {
	tr := startRelay(t)
	ctx := context.Background()
	rcv := tr.receiver(nil)

	ids, err := rcv.CheckNew(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, ids)

	pkg, err := Prepare([]byte("queued document"), "txt", testDomain, chunker.ChunkerConfig{})
	require.NoError(t, err)
	require.NoError(t, tr.srv.Publish(pkg.Request))

	ids, err = rcv.CheckNew(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{pkg.Request.MessageID}, ids)

	ids, err = rcv.CheckNew(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, rcv.Ack(ctx, pkg.Request.MessageID, "alice"))
	msg, err := tr.srv.Storage().GetMessage(pkg.Request.MessageID)
	require.NoError(t, err)
	assert.Equal(t, dnsserver.StateConsumed, msg.State)

	assert.ErrorIs(t, rcv.Ack(ctx, "ffffffffffffffff", "alice"), ErrRecordNotFound)
}

func TestPoll(t *testing.T) {
	tr := startRelay(t)
	data := randomDocument(500)

	pkg, err := Prepare(data, "html", testDomain, chunker.ChunkerConfig{})
	require.NoError(t, err)
	require.NoError(t, tr.srv.Publish(pkg.Request))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Retrieved, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- tr.receiver(nil).Poll(ctx, "bob", 20*time.Millisecond, func(r *Retrieved) error {
			got <- r
			return nil
		})
	}()

	select {
	case r := <-got:
		assert.Equal(t, data, r.Data)
		assert.Equal(t, "html", r.Manifest.Ext)
	case <-time.After(5 * time.Second):
		t.Fatal("poll never delivered the message")
	}

	assert.Eventually(t, func() bool {
		msg, err := tr.srv.Storage().GetMessage(pkg.Request.MessageID)
		return err == nil && msg.State == dnsserver.StateConsumed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, 4)
	pb.Update(2, 0)
	pb.Finish()

	out := buf.String()
	assert.Contains(t, out, "2/4 (50.0%)")
	assert.Contains(t, out, strings.Repeat("█", 15)+strings.Repeat("░", 15))
	assert.True(t, strings.HasSuffix(out, "\n"))
}
