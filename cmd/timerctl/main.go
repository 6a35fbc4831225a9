// Package main provides the timer control CLI entry point.
package main

import (
	"fmt"
	"os"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	if err := newCLI(os.Stdout).run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// describeError renders RPC errors without the transport prefix.
func describeError(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return fmt.Sprintf("%s (%s)", connectErr.Message(), connectErr.Code())
	}
	return err.Error()
}
