// Package logger provides leveled console logging for ragbot.
// Debug, Info and Section output is printed to stderr only when verbose
// mode is enabled via the --verbose flag. Warnings and errors are always
// printed, since they report files that were skipped or turns that failed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	logf(true, "[DEBUG] ", format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	logf(true, "[INFO] ", format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	logf(false, "[WARN] ", format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	logf(false, "[ERROR] ", format, args...)
}

func logf(verboseOnly bool, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if verboseOnly && !verbose {
		return
	}
	fmt.Fprintf(output, prefix+format+"\n", args...)
}
