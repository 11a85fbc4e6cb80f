package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/config"
	"github.com/faanross/simulacra_doc/internal/encoder"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/stego"
)

func main() {
	// Command line arguments
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	coverFile := flag.String("cover", "", "Cover document (.docx, .html, .txt)")
	outputFile := flag.String("output", "", "Output document (default: stego_<cover>)")
	message := flag.String("message", "", "Secret message")
	inputFile := flag.String("input", "", "Read the secret message from a file")
	method := flag.String("method", "", "Carrier method: space or zerowidth")
	format := flag.String("format", "", "Force document format: docx, html or txt")
	hash := flag.String("hash", "", "Keystream hash: sha256, sha3-256 or blake2b-256")
	normalize := flag.Bool("normalize", false, "NFC-normalize docx/txt text before embedding")
	key := flag.String("key", "", "Key (prompt if not provided)")
	analyze := flag.Bool("analyze", false, "Show capacity analysis")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			cfg.Stego.Method = *method
		case "format":
			cfg.Stego.Format = *format
		case "hash":
			cfg.Stego.Hash = *hash
		case "normalize":
			cfg.Stego.NormalizeUnicode = *normalize
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("❌ Logger error: %v", err)
	}

	// Validate input
	if *coverFile == "" {
		log.Fatal("❌ Please provide a cover document with -cover flag")
	}
	if *message == "" && *inputFile == "" {
		log.Fatal("❌ Please provide the secret with -message or -input")
	}

	fmt.Println("\n🔐 Document Steganography Encoder")
	fmt.Println("=" + strings.Repeat("=", 40))

	secret := []byte(*message)
	if *inputFile != "" {
		secret, err = os.ReadFile(*inputFile)
		if err != nil {
			log.Fatalf("❌ Error reading file: %v", err)
		}
	}
	if err := encoder.ValidateMessage(secret); err != nil {
		log.Fatalf("❌ %v", err)
	}

	coverInfo, err := os.Stat(*coverFile)
	if err != nil {
		log.Fatalf("❌ Cannot read cover: %v", err)
	}

	fmt.Printf("\n📄 Cover: %s (%s)\n", *coverFile, humanize.Bytes(uint64(coverInfo.Size())))
	fmt.Printf("   Secret: %s\n", humanize.Bytes(uint64(len(secret))))
	fmt.Printf("   Method: %s\n", cfg.Stego.Method)

	opts := stego.Options{
		Method:           cfg.Stego.Method,
		Format:           cfg.Stego.Format,
		Hash:             cfg.Stego.Hash,
		NormalizeUnicode: cfg.Stego.NormalizeUnicode,
		Logger:           logger,
	}

	if *analyze {
		report, err := stego.Capacity(*coverFile, len(secret), opts)
		if err != nil {
			log.Fatalf("❌ Capacity analysis failed: %v", err)
		}
		encoder.PrintCapacityReport(report)
	}

	// Get key
	var k []byte
	if *key != "" {
		k = []byte(*key)
	} else {
		k, err = scrypto.GetSecureKey("\n🔑 Enter key: ")
		if err != nil {
			log.Fatalf("❌ Key error: %v", err)
		}

		// Confirm key
		confirm, err := scrypto.GetSecureKey("🔑 Confirm key: ")
		if err != nil {
			log.Fatalf("❌ Key error: %v", err)
		}

		if !bytes.Equal(k, confirm) {
			log.Fatal("❌ Keys do not match")
		}
	}

	output := *outputFile
	if output == "" {
		output = stego.DefaultOutputPath(*coverFile)
	}

	elapsed, bits, err := stego.Embed(*coverFile, string(secret), string(k), output, opts)
	if err != nil {
		log.Fatalf("❌ Encoding failed: %v", err)
	}

	fmt.Printf("\n✅ Steganography complete!\n")
	fmt.Printf("   Output: %s\n", output)
	fmt.Printf("   Bits embedded: %d\n", bits)
	fmt.Printf("   Keystream: %s\n", cfg.Stego.Hash)
	fmt.Printf("   Time: %v\n", elapsed)
	fmt.Printf("\n🔓 To decode: Use the decoder with the same key and method\n")
}
