package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/config"
	dnsserver "github.com/faanross/simulacra_doc/internal/dns-server"
)

func printStats(storage dnsserver.Storage) {
	stats, err := storage.GetStats()
	if err != nil {
		log.Printf("Stats unavailable: %v", err)
		return
	}

	fmt.Printf("\n📊 Storage Statistics:\n")
	fmt.Printf("   Total messages: %d\n", stats.TotalMessages)
	fmt.Printf("   New (undelivered): %d\n", stats.NewMessages)
	fmt.Printf("   Delivered: %d\n", stats.Delivered)
	fmt.Printf("   Consumed: %d\n", stats.Consumed)
	fmt.Printf("   Total chunks: %d (%s)\n", stats.TotalChunks, humanize.Bytes(uint64(stats.TotalBytes)))

	messages, _ := storage.ListMessages()
	if len(messages) > 0 {
		fmt.Println("\n📬 Stored Messages:")
		for _, m := range messages {
			fmt.Printf("   %s: %d chunks, status=%s, age=%s\n",
				m.ID, m.TotalChunks, m.State, humanize.Time(m.CreatedAt))
		}
	}
}

func main() {
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	domain := flag.String("domain", "", "Domain to serve")
	addr := flag.String("addr", "", "DNS listen address")
	httpAddr := flag.String("http", "", "HTTP upload API listen address")
	persistent := flag.Bool("persistent", false, "Use persistent Badger storage")
	storagePath := flag.String("storage", "", "Badger storage directory")
	zoneFile := flag.String("zone", "", "Zone file to load")
	cleanInterval := flag.Duration("clean", 0, "Cleanup interval for old messages")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "domain":
			cfg.Relay.Domain = *domain
		case "addr":
			cfg.Relay.DNSAddr = *addr
		case "http":
			cfg.Relay.HTTPAddr = *httpAddr
		case "persistent":
			cfg.Relay.Persistent = *persistent
		case "storage":
			cfg.Relay.StoragePath = *storagePath
		case "clean":
			cfg.Relay.CleanupIntervalSec = int(cleanInterval.Seconds())
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("❌ Logger error: %v", err)
	}

	// Create storage backend
	var storage dnsserver.Storage
	if cfg.Relay.Persistent {
		storage, err = dnsserver.NewBadgerStorage(cfg.Relay.StoragePath, cfg.Relay.MessageTTL())
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
	} else {
		storage = dnsserver.NewMemoryStorage()
	}
	defer storage.Close()

	server := dnsserver.NewServer(cfg.Relay.Domain, storage, logger)

	// Load zone file if provided
	if *zoneFile != "" {
		content, err := os.ReadFile(*zoneFile)
		if err != nil {
			log.Fatalf("Failed to read zone file: %v", err)
		}
		msgID, err := server.LoadZone(string(content))
		if err != nil {
			log.Printf("Failed to load zone file: %v", err)
		} else {
			log.Printf("✅ Loaded message %s from zone file", msgID)
		}
	}

	// Print initial stats
	printStats(storage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n🌐 DNS relay starting on %s (udp+tcp)\n", cfg.Relay.DNSAddr)
	fmt.Printf("📡 HTTP API on %s\n", cfg.Relay.HTTPAddr)
	fmt.Printf("📍 Domain: %s\n", server.Domain())
	if cfg.Relay.Persistent {
		fmt.Printf("💾 Storage: Badger (%s)\n", cfg.Relay.StoragePath)
	} else {
		fmt.Println("💾 Storage: In-memory")
	}
	fmt.Printf("🧹 Cleanup: Every %v, TTL %v\n", cfg.Relay.CleanupInterval(), cfg.Relay.MessageTTL())
	fmt.Println("\n✅ Server ready!")

	err = server.Run(ctx, dnsserver.ListenConfig{
		DNSAddr:         cfg.Relay.DNSAddr,
		HTTPAddr:        cfg.Relay.HTTPAddr,
		CleanupInterval: cfg.Relay.CleanupInterval(),
		MessageTTL:      cfg.Relay.MessageTTL(),
	})
	fmt.Println("\n🛑 Shut down")
	if err != nil {
		log.Printf("Server error: %v", err)
	}
	printStats(storage)
}
