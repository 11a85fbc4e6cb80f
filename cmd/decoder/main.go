package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/faanross/simulacra_doc/internal/config"
	"github.com/faanross/simulacra_doc/internal/decoder"
	"github.com/faanross/simulacra_doc/internal/scrypto"
	"github.com/faanross/simulacra_doc/internal/stego"
)

func main() {
	// Command line arguments
	configPath := flag.String("config", "", "Config file (.toml or .yaml)")
	inputFile := flag.String("input", "", "Path to stego document")
	outputFile := flag.String("output", "", "Save extracted message to file")
	method := flag.String("method", "", "Carrier method: space or zerowidth")
	format := flag.String("format", "", "Force document format: docx, html or txt")
	hash := flag.String("hash", "", "Keystream hash: sha256, sha3-256 or blake2b-256")
	key := flag.String("key", "", "Key (prompt if not provided)")
	analyze := flag.Bool("analyze", false, "Perform security analysis only")
	tryList := flag.String("trylist", "", "Comma-separated keys to try")
	verbose := flag.Bool("verbose", false, "Show full extracted message")

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
	if *inputFile == "" {
		log.Fatal("❌ Please provide a stego document with -input flag")
	}

	fmt.Println("\n🔓 Document Steganography Decoder")
	fmt.Println("=" + strings.Repeat("=", 40))

	info, err := os.Stat(*inputFile)
	if err != nil {
		log.Fatalf("❌ Error opening file: %v", err)
	}

	fmt.Printf("\n📄 Document loaded:\n")
	fmt.Printf("   File: %s\n", *inputFile)
	fmt.Printf("   Size: %s\n", humanize.Bytes(uint64(info.Size())))
	fmt.Printf("   Method: %s\n", cfg.Stego.Method)

	opts := stego.Options{
		Method: cfg.Stego.Method,
		Format: cfg.Stego.Format,
		Hash:   cfg.Stego.Hash,
		Logger: logger,
	}

	// Security analysis mode
	if *analyze {
		report, err := stego.Inspect(*inputFile, opts)
		if err != nil {
			log.Fatalf("❌ Analysis failed: %v", err)
		}
		decoder.PrintSecurityReport(report)
		return
	}

	// Try multiple keys mode
	if *tryList != "" {
		keys := strings.Split(*tryList, ",")
		result, idx, err := stego.TryKeys(*inputFile, keys, opts)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Printf("\n🔑 Key #%d produced a valid message\n", idx+1)
		printMessage(string(result.Message), *verbose)
		return
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
	}

	message, elapsed, bits, err := stego.Extract(*inputFile, string(k), opts)
	if err != nil {
		log.Fatalf("❌ Extraction failed: %v", err)
	}

	// Display results
	fmt.Printf("\n✅ MESSAGE EXTRACTED\n")
	fmt.Println("=" + strings.Repeat("=", 40))

	fmt.Printf("\n📊 Extraction Statistics:\n")
	fmt.Printf("   Bits read: %d\n", bits)
	fmt.Printf("   Message size: %s\n", humanize.Bytes(uint64(len(message))))
	fmt.Printf("   Time: %v\n", elapsed)
	if !utf8.ValidString(message) {
		fmt.Printf("   ⚠️  Message is not valid UTF-8, the key is probably wrong\n")
	}

	printMessage(message, *verbose)

	// Save to file if requested
	if *outputFile != "" {
		err = os.WriteFile(*outputFile, []byte(message), 0644)
		if err != nil {
			log.Fatalf("❌ Error saving output: %v", err)
		}
		fmt.Printf("\n💾 Message saved to: %s\n", *outputFile)
	}

	fmt.Println("\n✅ Decoding complete!")
}

func printMessage(message string, verbose bool) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📝 EXTRACTED MESSAGE:")
	fmt.Println(strings.Repeat("=", 60))

	runes := []rune(message)
	if verbose || len(runes) <= 500 {
		fmt.Println(message)
	} else {
		// Show preview for long messages
		fmt.Printf("%s\n... [%d more characters] ...\n%s\n",
			string(runes[:200]),
			len(runes)-400,
			string(runes[len(runes)-200:]))
		fmt.Printf("\n(Use -verbose flag to see full message)\n")
	}

	fmt.Println(strings.Repeat("=", 60))
}
