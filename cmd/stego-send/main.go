package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/faanross/simulacra_doc/internal/config"
	"github.com/faanross/simulacra_doc/internal/relay"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/stego"
)

// ================================================================================
// RELAY UPLOAD CLIENT - Sender side
// Hides a message in a cover document and uploads it to the DNS relay
// ================================================================================

func main() {
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	cover := flag.String("cover", "", "Cover document to embed into")
	stegoFile := flag.String("stego", "", "Already-embedded document to send as is")
	message := flag.String("message", "", "Secret message")
	inputFile := flag.String("input", "", "Read the secret message from a file")
	key := flag.String("key", "", "Key (prompt if not provided)")
	method := flag.String("method", "", "Carrier method: space or zerowidth")
	uploadURL := flag.String("upload", "", "Relay upload endpoint")
	domain := flag.String("domain", "", "Relay domain")
	encoding := flag.String("encoding", "", "Chunk encoding: base32 or hex")
	compress := flag.Bool("compress", true, "zstd-compress the document when it helps")
	zoneOut := flag.String("zone", "", "Also write the records to this zone file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			cfg.Stego.Method = *method
		case "upload":
			cfg.Relay.UploadURL = *uploadURL
		case "domain":
			cfg.Relay.Domain = *domain
		case "encoding":
			cfg.Relay.Encoding = *encoding
		case "compress":
			cfg.Relay.Compress = *compress
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("❌ Logger error: %v", err)
	}

	if *cover == "" && *stegoFile == "" {
		log.Fatal("Please provide -cover (with a message) or -stego (prepared document)")
	}

	fmt.Println("\n🚀 DNS RELAY UPLOADER")

	docPath := *stegoFile
	if docPath == "" {
		secret := *message
		if *inputFile != "" {
			data, err := os.ReadFile(*inputFile)
			if err != nil {
				log.Fatalf("❌ Error reading file: %v", err)
			}
			secret = string(data)
		}
		if secret == "" {
			log.Fatal("❌ Please provide the secret with -message or -input")
		}

		k := []byte(*key)
		if len(k) == 0 {
			k, err = scrypto.GetSecureKey("\n🔑 Enter key: ")
			if err != nil {
				log.Fatalf("❌ Key error: %v", err)
			}
		}

		docPath = stego.DefaultOutputPath(*cover)
		elapsed, bits, err := stego.Embed(*cover, secret, string(k), docPath, stego.Options{
			Method:           cfg.Stego.Method,
			Format:           cfg.Stego.Format,
			Hash:             cfg.Stego.Hash,
			NormalizeUnicode: cfg.Stego.NormalizeUnicode,
			Logger:           logger,
		})
		if err != nil {
			log.Fatalf("❌ Embedding failed: %v", err)
		}
		fmt.Printf("🔐 Embedded %d bits into %s in %v\n", bits, docPath, elapsed)
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		log.Fatalf("❌ Cannot read document: %v", err)
	}

	pkg, err := relay.Prepare(data, filepath.Ext(docPath), cfg.Relay.Domain, chunker.ChunkerConfig{
		Encoding:    cfg.Relay.Encoding,
		Compression: cfg.Relay.Compress,
		Logger:      logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("📄 Document: %s\n", docPath)
	fmt.Printf("   Size: %s\n", humanize.Bytes(uint64(len(data))))
	fmt.Printf("   Chunks: %d\n", len(pkg.Message.Chunks))
	fmt.Printf("   Message ID: %s\n", pkg.Manifest.MessageID)

	if *zoneOut != "" {
		zone := chunker.NewDNSEncoder(cfg.Relay.Domain).GenerateZoneFile(pkg.Records)
		if err := os.WriteFile(*zoneOut, []byte(zone), 0644); err != nil {
			log.Fatalf("❌ Cannot write zone file: %v", err)
		}
		fmt.Printf("   Zone file: %s\n", *zoneOut)
	}

	// Display configuration
	fmt.Printf("\n⚙️ Configuration:\n")
	fmt.Printf("   Upload URL: %s\n", cfg.Relay.UploadURL)
	fmt.Printf("   Domain: %s\n", cfg.Relay.Domain)
	fmt.Printf("   Encoding: %s (compressed: %v)\n", pkg.Message.Encoding, pkg.Message.Compressed)

	uploader := relay.NewUploader(relay.UploaderConfig{
		URL:     cfg.Relay.UploadURL,
		Retries: cfg.Relay.Retries,
		Timeout: cfg.Relay.QueryTimeout() * 2,
		Logger:  logger,
	})

	fmt.Printf("\n📤 UPLOADING MESSAGE: %s\n", pkg.Manifest.MessageID)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	resp, err := uploader.Upload(ctx, pkg)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	fmt.Printf("\n✅ Upload successful!\n")
	fmt.Printf("   Message ID: %s\n", resp.MessageID)
	fmt.Printf("   Chunks uploaded: %d\n", resp.Chunks)

	fmt.Println("\n🎉 Upload complete!")
	fmt.Printf("\nExample receiver command:\n")
	fmt.Printf("  stego-receive -server %s -domain %s -msg %s\n", cfg.Relay.Server, cfg.Relay.Domain, resp.MessageID)
}
