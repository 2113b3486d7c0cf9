package svc_sim

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
)

// Logger receives status messages from the controllers.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var (
	infoTag  = color.New(color.FgGreen).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.Bold, color.FgRed).SprintFunc()
)

// ConsoleLogger writes coloured, prefixed lines through the standard logger.
type ConsoleLogger struct {
	l *log.Logger
}

// NewConsoleLogger returns a logger writing to stderr.
func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (c *ConsoleLogger) Infof(format string, args ...any) {
	c.emit(infoTag("[Msg]"), format, args...)
}

func (c *ConsoleLogger) Warnf(format string, args ...any) {
	c.emit(warnTag("[Wrn]"), format, args...)
}

func (c *ConsoleLogger) Errorf(format string, args ...any) {
	c.emit(errorTag("[Err]"), format, args...)
}

func (c *ConsoleLogger) emit(tag, format string, args ...any) {
	c.l.Printf("%s [ServiceSim] %s", tag, fmt.Sprintf(format, args...))
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// orNop substitutes NopLogger for a nil logger.
func orNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
