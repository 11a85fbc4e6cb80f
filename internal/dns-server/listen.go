package dnsserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// SHUTDOWN_TIMEOUT bounds how long each listener may take to drain
const SHUTDOWN_TIMEOUT = 5 * time.Second

// ListenConfig describes where the relay listens and how often it cleans up.
type ListenConfig struct {
	DNSAddr         string
	HTTPAddr        string
	CleanupInterval time.Duration
	MessageTTL      time.Duration
}

// Run serves DNS over UDP and TCP, the HTTP upload API and the cleanup loop.
// It returns when ctx ends or any listener fails, after every started
// listener has been shut down.
func (s *Server) Run(ctx context.Context, cfg ListenConfig) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, network := range []string{"udp", "tcp"} {
		srv := &dns.Server{Addr: cfg.DNSAddr, Net: network, Handler: s}
		started := make(chan struct{})
		srv.NotifyStartedFunc = func() { close(started) }
		exited := make(chan struct{})

		g.Go(func() error {
			defer close(exited)
			if err := srv.ListenAndServe(); err != nil {
				return fmt.Errorf("dns %s listener: %w", network, err)
			}
			return nil
		})

		g.Go(func() error {
			// ShutdownContext fails on a server that has not started yet,
			// which would leave a late ListenAndServe running.
			select {
			case <-started:
			case <-exited:
				return nil
			}
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()
			if err := srv.ShutdownContext(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown dns %s listener: %w", network, err)
			}
			s.log.WithField("net", network).Debug("dns listener stopped")
			return nil
		})
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http listener: %w", err)
		}
		return nil
	})

	if cfg.CleanupInterval > 0 {
		g.Go(func() error {
			s.RunCleanup(gctx, cfg.CleanupInterval, cfg.MessageTTL)
			return nil
		})
	}

	return g.Wait()
}
