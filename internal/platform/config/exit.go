package config

import (
	"fmt"
	"os"
)

// Exitf prints a formatted message to stderr and terminates with exit code 1.
// Command entry points use it for fatal startup errors.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
