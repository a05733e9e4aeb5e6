package logger

import (
	"log"
	"os"
)

// New returns the process-wide logger, writing to stderr so agent output
// never interleaves with anything piped from stdout. Swap in structured
// logging when needed.
func New() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags|log.LUTC)
}
