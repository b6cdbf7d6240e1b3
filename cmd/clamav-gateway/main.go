// Package main implements the clamav-gateway binary: an HTTP front end that
// streams uploads to clamd and answers with a JSON verdict.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Build information, overridden with -ldflags at release time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "clamav-gateway"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(1)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		// An infected scan result has already been printed.
		if !errors.Is(err, errInfected) {
			slog.Error("Application failed", "error", err, "exit_code", 1)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}
