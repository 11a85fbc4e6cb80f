package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/config"
	"github.com/faanross/simulacra_doc/internal/relay"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/stego"
)

// ================================================================================
// DNS RECEIVER CLIENT - Retrieves and decodes hidden messages
// ================================================================================

// save writes a retrieved document as received_<id>.<ext> under dir
func save(got *relay.Retrieved, dir string) (string, error) {
	ext := got.Manifest.Ext
	if ext == "" {
		ext = "bin"
	}
	path := filepath.Join(dir, fmt.Sprintf("received_%s.%s", got.MessageID, ext))
	return path, os.WriteFile(path, got.Data, 0644)
}

func main() {
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	server := flag.String("server", "", "Relay DNS server (host:port)")
	domain := flag.String("domain", "", "Relay domain")
	msgID := flag.String("msg", "", "Message ID to retrieve")
	poll := flag.Bool("poll", false, "Poll for new messages")
	pollInterval := flag.Duration("interval", 0, "Poll interval (default 5s)")
	clientID := flag.String("client", "", "Client ID for polling")
	concurrency := flag.Int("concurrency", 0, "Parallel chunk queries")
	decode := flag.Bool("decode", false, "Extract the hidden message after retrieval")
	key := flag.String("key", "", "Key for decoding (prompt if not provided)")
	output := flag.String("output", ".", "Output directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Relay.Server = *server
		case "domain":
			cfg.Relay.Domain = *domain
		case "client":
			cfg.Relay.ClientID = *clientID
		case "concurrency":
			cfg.Relay.Concurrency = *concurrency
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("❌ Logger error: %v", err)
	}

	fmt.Println("\n📡 DNS RELAY RECEIVER")

	var pass []byte
	if *decode {
		pass = []byte(*key)
		if len(pass) == 0 {
			pass, err = scrypto.GetSecureKey("Enter key: ")
			if err != nil {
				log.Fatal(err)
			}
		}
	}

	stegoOpts := stego.Options{
		Method: cfg.Stego.Method,
		Hash:   cfg.Stego.Hash,
		Logger: logger,
	}

	decodeAndSave := func(path string) {
		message, elapsed, bits, err := stego.Extract(path, string(pass), stegoOpts)
		if err != nil {
			log.Printf("Decode failed: %v", err)
			return
		}
		outPath := path + ".message.txt"
		if err := os.WriteFile(outPath, []byte(message), 0644); err != nil {
			log.Printf("Failed to save: %v", err)
			return
		}
		fmt.Printf("✅ Decoded %d bits in %v, message saved to: %s\n", bits, elapsed, outPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *poll {
		receiver := relay.NewReceiver(relay.ReceiverConfig{
			Server:      cfg.Relay.Server,
			Domain:      cfg.Relay.Domain,
			Concurrency: cfg.Relay.Concurrency,
			Retries:     cfg.Relay.Retries,
			Timeout:     cfg.Relay.QueryTimeout(),
			Logger:      logger,
		})

		interval := *pollInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}

		fmt.Printf("\n👁️ POLLING MODE\n")
		fmt.Printf("   Client ID: %s\n", cfg.Relay.ClientID)
		fmt.Printf("   Poll interval: %v\n", interval)
		fmt.Println("\nWaiting for messages... (Press Ctrl+C to stop)")

		err := receiver.Poll(ctx, cfg.Relay.ClientID, interval, func(got *relay.Retrieved) error {
			path, err := save(got, *output)
			if err != nil {
				return err
			}
			fmt.Printf("\n🔔 %s: %s in %v, saved to %s\n",
				got.MessageID, humanize.Bytes(uint64(len(got.Data))), got.Elapsed, path)
			if *decode {
				decodeAndSave(path)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Fatal(err)
		}
		fmt.Println("\n🛑 Stopped polling")
		return
	}

	if *msgID == "" {
		fmt.Println("Please specify -msg ID or -poll")
		flag.Usage()
		return
	}

	fmt.Printf("\n📥 RETRIEVING MESSAGE: %s\n", *msgID)
	fmt.Printf("   Server: %s\n", cfg.Relay.Server)
	fmt.Printf("   Domain: %s\n", cfg.Relay.Domain)

	bar := relay.NewProgressBar(os.Stdout, 0)
	receiver := relay.NewReceiver(relay.ReceiverConfig{
		Server:      cfg.Relay.Server,
		Domain:      cfg.Relay.Domain,
		Concurrency: cfg.Relay.Concurrency,
		Retries:     cfg.Relay.Retries,
		Timeout:     cfg.Relay.QueryTimeout(),
		Logger:      logger,
		Progress:    bar.Update,
	})

	got, err := receiver.Retrieve(ctx, *msgID)
	bar.Finish()
	if err != nil {
		log.Fatalf("Retrieval failed: %v", err)
	}

	path, err := save(got, *output)
	if err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	fmt.Printf("\n📊 RETRIEVAL SUMMARY:\n")
	fmt.Printf("   Message ID: %s\n", got.MessageID)
	fmt.Printf("   Size: %s\n", humanize.Bytes(uint64(len(got.Data))))
	fmt.Printf("   Chunks: %d\n", got.Chunks)
	fmt.Printf("   Time: %v\n", got.Elapsed)
	fmt.Printf("   Rate: %s/s\n", humanize.Bytes(uint64(float64(len(got.Data))/got.Elapsed.Seconds())))
	fmt.Printf("   Saved to: %s\n", path)

	// Optionally decode
	if *decode {
		fmt.Printf("\n🔓 Extracting hidden message...\n")
		decodeAndSave(path)
	}

	fmt.Println("\n✅ RETRIEVAL COMPLETE!")
}
