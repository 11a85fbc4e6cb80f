package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/chunker"
	"github.com/faanross/simulacra_doc/internal/config"
	"github.com/faanross/simulacra_doc/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	input := flag.String("input", "", "Stego document to chunk")
	domain := flag.String("domain", "", "DNS domain")
	encoding := flag.String("encoding", "", "Chunk encoding: base32 or hex")
	compress := flag.Bool("compress", true, "zstd-compress the document when it helps")
	output := flag.String("output", "zone.txt", "Output zone file")
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: dns-encoder -input <stego.docx> [-domain covert.example.com]")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
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

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("❌ Cannot read input: %v", err)
	}

	fmt.Printf("📄 Document: %s (%s)\n", *input, humanize.Bytes(uint64(len(data))))

	pkg, err := relay.Prepare(data, filepath.Ext(*input), cfg.Relay.Domain, chunker.ChunkerConfig{
		Encoding:    cfg.Relay.Encoding,
		Compression: cfg.Relay.Compress,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("❌ Chunking failed: %v", err)
	}

	fmt.Printf("🧩 Chunks: %d (%s encoding, compressed: %v)\n",
		len(pkg.Message.Chunks), pkg.Message.Encoding, pkg.Message.Compressed)
	fmt.Printf("🌐 DNS Records: %d\n", len(pkg.Records))
	fmt.Printf("📋 Message ID: %s\n", pkg.Manifest.MessageID)

	// Show example records
	fmt.Println("\nExample DNS records:")
	for i := 0; i < 3 && i < len(pkg.Records); i++ {
		r := pkg.Records[i]
		value := r.Value
		if len(value) > 50 {
			value = value[:50] + "..."
		}
		fmt.Printf("  %s TXT \"%s\"\n", r.Name, value)
	}

	// Generate zone file
	zoneFile := chunker.NewDNSEncoder(cfg.Relay.Domain).GenerateZoneFile(pkg.Records)
	if err := os.WriteFile(*output, []byte(zoneFile), 0644); err != nil {
		log.Fatalf("❌ Cannot write zone file: %v", err)
	}

	fmt.Printf("\n✅ Zone file saved to: %s\n", *output)
	fmt.Println("\nNext steps:")
	fmt.Printf("1. Load it into the relay: dns-server -zone %s\n", *output)
	fmt.Printf("2. Retrieve it: stego-receive -msg %s\n", pkg.Manifest.MessageID)
}
