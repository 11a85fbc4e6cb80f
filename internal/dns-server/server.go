package dnsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	// QUEUE_TTL keeps consume answers out of resolver caches for long
	QUEUE_TTL = 60
	ACK_TTL   = 0
)

// UploadRequest is the JSON body of POST /upload
type UploadRequest struct {
	MessageID string            `json:"message_id"`
	Chunks    map[string]string `json:"chunks"` // record name or label -> encoded chunk
	Manifest  string            `json:"manifest"`
}

// UploadResponse is returned for a stored upload
type UploadResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Chunks    int    `json:"chunks"`
}

// PendingResponse lists messages a client has not fetched yet
type PendingResponse struct {
	ClientID string   `json:"client_id"`
	Messages []string `json:"messages"`
}

// Server answers TXT queries for chunks, manifests and queue operations
// under one domain, and accepts uploads over HTTP.
//
// Query names (all under <domain>):
//
//	m-<id>.data             manifest
//	c-<seq>-<id>.data       chunk
//	consume.<client>        comma separated ids not yet handed to client
//	ack.<id>.<client>       mark id consumed
type Server struct {
	domain  string
	storage Storage
	queue   *QueueManager
	log     *logrus.Logger
}

// NewServer creates a relay server over storage
func NewServer(domain string, storage Storage, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		domain:  strings.TrimSuffix(strings.ToLower(domain), "."),
		storage: storage,
		queue:   NewQueueManager(storage),
		log:     logger,
	}
}

// Domain returns the zone the server is authoritative for
func (s *Server) Domain() string { return s.domain }

// Storage returns the backing store
func (s *Server) Storage() Storage { return s.storage }

// ServeDNS implements dns.Handler
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	for _, question := range r.Question {
		if question.Qtype != dns.TypeTXT {
			continue
		}
		answers, rcode := s.Answer(question)
		msg.Answer = append(msg.Answer, answers...)
		if rcode != dns.RcodeSuccess {
			msg.Rcode = rcode
		}
	}

	if err := w.WriteMsg(msg); err != nil {
		s.log.WithError(err).Warn("failed to write DNS response")
	}
}

// Answer resolves one TXT question
func (s *Server) Answer(q dns.Question) ([]dns.RR, int) {
	qname := strings.ToLower(strings.TrimSuffix(q.Name, "."))

	suffix := "." + s.domain
	if !strings.HasSuffix(qname, suffix) {
		return nil, dns.RcodeRefused
	}
	labels := strings.Split(strings.TrimSuffix(qname, suffix), ".")

	switch {
	case len(labels) == 2 && labels[0] == "consume":
		return s.handleConsume(qname, labels[1]), dns.RcodeSuccess

	case len(labels) == 3 && labels[0] == "ack":
		return s.handleAck(qname, labels[1], labels[2])

	case len(labels) == 2 && labels[1] == "data":
		return s.handleChunkQuery(qname, labels[0])
	}

	s.log.WithField("qname", qname).Debug("unrecognised query")
	return nil, dns.RcodeNameError
}

func txtRecord(qname string, ttl uint32, value string) dns.RR {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(qname),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: []string{value},
	}
}

// messageIDFromLabel extracts <id> from m-<id> or c-<seq>-<id>
func messageIDFromLabel(label string) (string, bool) {
	switch {
	case strings.HasPrefix(label, "m-"):
		id := strings.TrimPrefix(label, "m-")
		return id, id != ""
	case strings.HasPrefix(label, "c-"):
		seq, id, ok := strings.Cut(strings.TrimPrefix(label, "c-"), "-")
		if !ok || id == "" {
			return "", false
		}
		if _, err := strconv.Atoi(seq); err != nil {
			return "", false
		}
		return id, true
	}
	return "", false
}

func (s *Server) handleChunkQuery(qname, label string) ([]dns.RR, int) {
	msgID, ok := messageIDFromLabel(label)
	if !ok {
		return nil, dns.RcodeNameError
	}

	var value string
	if strings.HasPrefix(label, "m-") {
		message, err := s.storage.GetMessage(msgID)
		if err != nil {
			s.log.WithField("message_id", msgID).Debug("manifest not found")
			return nil, dns.RcodeNameError
		}
		value = message.Manifest
	} else {
		chunk, err := s.storage.GetChunk(msgID, label)
		if err != nil {
			s.log.WithFields(logrus.Fields{"message_id": msgID, "chunk": label}).Debug("chunk not found")
			return nil, dns.RcodeNameError
		}
		value = chunk
	}

	s.log.WithField("qname", qname).Debug("served")
	return []dns.RR{txtRecord(qname, chunker.RECORD_TTL, value)}, dns.RcodeSuccess
}

func (s *Server) handleConsume(qname, clientID string) []dns.RR {
	messages, err := s.queue.ConsumeMessages(clientID)
	if err != nil {
		s.log.WithError(err).WithField("client", clientID).Warn("consume failed")
		return nil
	}
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}

	s.log.WithFields(logrus.Fields{"client": clientID, "messages": len(ids)}).Info("client consumed messages")
	return []dns.RR{txtRecord(qname, QUEUE_TTL, strings.Join(ids, ","))}
}

func (s *Server) handleAck(qname, msgID, clientID string) ([]dns.RR, int) {
	if err := s.queue.AcknowledgeMessage(msgID, clientID); err != nil {
		s.log.WithError(err).WithField("message_id", msgID).Debug("ack failed")
		return nil, dns.RcodeNameError
	}
	s.log.WithFields(logrus.Fields{"client": clientID, "message_id": msgID}).Info("message acknowledged")
	return []dns.RR{txtRecord(qname, ACK_TTL, "ok")}, dns.RcodeSuccess
}

// Publish validates and stores an upload. Chunk keys may be full record
// names; only the first label is kept.
func (s *Server) Publish(req UploadRequest) error {
	if req.MessageID == "" {
		return errors.New("missing message_id")
	}
	if len(req.Chunks) == 0 {
		return errors.New("no chunks in upload")
	}

	manifest, err := chunker.ParseManifest(req.MessageID, req.Manifest)
	if err != nil {
		return err
	}
	if manifest.TotalChunks != len(req.Chunks) {
		return fmt.Errorf("manifest declares %d chunks, upload has %d",
			manifest.TotalChunks, len(req.Chunks))
	}

	chunks := make(map[string]string, len(req.Chunks))
	for name, value := range req.Chunks {
		label, _, _ := strings.Cut(strings.ToLower(name), ".")
		id, ok := messageIDFromLabel(label)
		if !ok || !strings.HasPrefix(label, "c-") || id != req.MessageID {
			return fmt.Errorf("chunk %q does not belong to message %s", name, req.MessageID)
		}
		chunks[label] = value
	}

	if err := s.queue.PublishMessage(req.MessageID, chunks, req.Manifest); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"message_id": req.MessageID, "chunks": len(chunks)}).Info("message published")
	return nil
}

// LoadZone publishes the message held in a zone file written by the DNS
// encoder and returns its id.
func (s *Server) LoadZone(content string) (string, error) {
	records, err := chunker.ParseZoneFile(content)
	if err != nil {
		return "", err
	}

	req := UploadRequest{Chunks: make(map[string]string)}
	for _, record := range records {
		label, _, _ := strings.Cut(strings.ToLower(record.Name), ".")
		switch {
		case strings.HasPrefix(label, "m-"):
			req.MessageID = strings.TrimPrefix(label, "m-")
			req.Manifest = record.Value
		case strings.HasPrefix(label, "c-"):
			req.Chunks[label] = record.Value
		}
	}

	if req.MessageID == "" {
		return "", errors.New("no manifest record in zone file")
	}
	return req.MessageID, s.Publish(req)
}

// HTTPHandler exposes POST /upload, GET /status and GET /messages?client=
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleHTTPUpload)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/messages", s.handlePending)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHTTPUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.Publish(req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrMessageExists) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:    "success",
		MessageID: req.MessageID,
		Chunks:    len(req.Chunks),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePending lists without marking anything delivered
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		http.Error(w, "missing client parameter", http.StatusBadRequest)
		return
	}

	messages, err := s.storage.GetNewMessages(clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := PendingResponse{ClientID: clientID, Messages: []string{}}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, m.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunCleanup removes messages older than ttl every interval until ctx ends
func (s *Server) RunCleanup(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanExpired(ttl)
			if err != nil {
				s.log.WithError(err).Warn("cleanup failed")
				continue
			}
			if removed > 0 {
				s.log.WithField("removed", removed).Info("expired messages cleaned")
			}
		}
	}
}
