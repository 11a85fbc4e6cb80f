package scrypto

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/faanross/simulacra_doc/internal/spec"
	"golang.org/x/term"
)

// GetSecureKey prompts for a key with hidden input.
// When stdin is not a terminal the first line of stdin is used instead.
func GetSecureKey(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	if !term.IsTerminal(fd) {
		return readKeyLine(os.Stdin)
	}

	fmt.Print(prompt)
	key, err := term.ReadPassword(fd)
	fmt.Println() // New line after key

	if err != nil {
		return nil, fmt.Errorf("key read failed: %w", err)
	}

	if len(key) == 0 {
		return nil, spec.ErrEmptyKey
	}

	return key, nil
}

func readKeyLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("key read failed: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, spec.ErrEmptyKey
	}

	return []byte(line), nil
}
