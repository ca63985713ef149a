// seal-secret prints the sealed ("enc:...") form of a secret for use in
// PGPASSWORD or DIFY_API_KEY. The server opens it with SECRETS_KEY.
//
// Usage: SECRETS_KEY=... go run ./scripts/seal-secret < secret.txt
//
// The secret is read from stdin; a trailing newline is dropped.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ekaya-inc/downtime-engine/pkg/crypto"
)

func main() {
	if err := run(os.Stdin, os.Stdout, os.Getenv("SECRETS_KEY")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, key string) error {
	box, err := crypto.NewSecretBox(key)
	if err != nil {
		return fmt.Errorf("SECRETS_KEY: %w", err)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return fmt.Errorf("empty secret on stdin")
	}

	sealed, err := box.Seal(secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, sealed)
	return err
}
