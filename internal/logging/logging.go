// Package logging builds the leveled loggers used by the client and receiver.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = "${time_rfc3339} ${level} ${prefix}"

// Logger is the subset of gommon's logger the upload components depend on.
// Both *log.Logger and echo.Logger satisfy it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ParseLevel maps a config level name to a gommon level.
func ParseLevel(level string) (log.Lvl, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off", "none":
		return log.OFF, nil
	default:
		return log.INFO, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a logger writing to stderr. Unknown levels fall back to info.
func New(prefix, level string) *log.Logger {
	return NewWithOutput(prefix, level, os.Stderr)
}

// NewWithOutput returns a logger writing to w.
func NewWithOutput(prefix, level string, w io.Writer) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetOutput(w)

	lvl, _ := ParseLevel(level)
	l.SetLevel(lvl)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	l := log.New("-")
	l.SetOutput(io.Discard)
	l.SetLevel(log.OFF)
	return l
}
