// Package log provides the minimal, prefix-based debug logger used across
// this client. Output is gated by the SOCKETIO_DEBUG environment variable,
// mirroring the DEBUG-style toggles used throughout the Socket.IO ecosystem.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
)

var (
	mu      sync.RWMutex
	enabled = strings.TrimSpace(os.Getenv("SOCKETIO_DEBUG")) != ""
)

// SetDebug toggles debug output for every Log instance at runtime.
func SetDebug(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

func debugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Log is a prefix-tagged logger. Debug lines are dropped unless debug
// output has been enabled; Error and Warning always print.
type Log struct {
	prefix string
}

// NewLog returns a logger tagging every line with prefix, e.g. "engine.io-client:polling".
func NewLog(prefix string) *Log {
	return &Log{prefix: prefix}
}

func (l *Log) line(tag, format string, args ...any) string {
	return fmt.Sprintf("%s [%s] %s", tag, l.prefix, fmt.Sprintf(format, args...))
}

// Debug prints a diagnostic line when debug output is enabled.
func (l *Log) Debug(format string, args ...any) {
	if !debugEnabled() {
		return
	}
	color.FgGray.Println(l.line("debug", format, args...))
}

// Warning prints a yellow warning line unconditionally.
func (l *Log) Warning(format string, args ...any) {
	color.FgYellow.Println(l.line("warn", format, args...))
}

// Error prints a red error line unconditionally.
func (l *Log) Error(format string, args ...any) {
	color.FgRed.Println(l.line("error", format, args...))
}
