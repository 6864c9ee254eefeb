// File: cmd/dripper/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/cmd"
	"github.com/xkilldash9x/dripper/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables for dependency injection in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	// Shut down cleanly on SIGINT and SIGTERM; the context reaches every
	// command through cobra.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	osExit(exitCode(err))
}

// exitCode maps a classified failure to the process exit code so operators
// and systemd units can tell a config mistake from a banned account.
// Cancellation counts as a clean stop.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	switch schemas.ClassOf(err) {
	case schemas.ClassConfig:
		return 2
	case schemas.ClassBadCredentials, schemas.ClassBadTotp:
		return 3
	case schemas.ClassBlocked:
		return 4
	default:
		return 1
	}
}

// handlePanic writes crash details somewhere durable before exiting, since
// the daemon usually runs detached from any terminal.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure logs are flushed before proceeding.
		observability.Sync()

		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return
		}

		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
		osExit(1)
	}
}
