// Package logging writes one chronological log file per run. The root
// logger owns the file; Scope derives component-tagged loggers that share
// it, so entries from the registry, auth flow, scheduler and HTTP layer for
// one run land in a single file in order.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sink is the shared write target behind a root logger and its scopes.
type sink struct {
	mu        sync.Mutex
	out       io.Writer
	file      *os.File
	path      string
	closeOnce sync.Once
}

// Logger tags entries with a component name and writes them to its sink.
type Logger struct {
	component string
	sink      *sink
}

// NewLogger creates a root logger writing to ~/.agentbridge/logs. It never
// fails: when the log file cannot be set up, entries go to stderr instead.
func NewLogger(component string) *Logger {
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback(component, err)
	}
	return NewLoggerIn(filepath.Join(home, ".agentbridge", "logs"), component)
}

// NewLoggerIn creates a root logger writing to <dir>/<component>-<run>.log.
// The run suffix keeps successive runs apart in one directory.
func NewLoggerIn(dir, component string) *Logger {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fallback(component, err)
	}

	run := uuid.New().String()[:8]
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, run))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fallback(component, err)
	}

	return &Logger{
		component: component,
		sink:      &sink{out: file, file: file, path: path},
	}
}

func fallback(component string, err error) *Logger {
	l := &Logger{component: component, sink: &sink{out: os.Stderr}}
	l.Warnf("file logging unavailable, writing to stderr: %v", err)
	return l
}

// Scope returns a logger for a sub-component sharing this logger's file.
func (l *Logger) Scope(name string) *Logger {
	return &Logger{component: name, sink: l.sink}
}

// LogPath returns the log file location, or "" when writing to stderr.
func (l *Logger) LogPath() string {
	return l.sink.path
}

func (l *Logger) logf(level, format string, v ...interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s %-5s %s: %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level, l.component, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level entry.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf("DEBUG", format, v...) }

// Infof logs an info-level entry.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf("INFO", format, v...) }

// Warnf logs a warning-level entry.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf("WARN", format, v...) }

// Errorf logs an error-level entry.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf("ERROR", format, v...) }

// Close closes the shared log file. Safe on any scope, safe to repeat;
// a stderr fallback logger has nothing to close.
func (l *Logger) Close() error {
	var err error
	l.sink.closeOnce.Do(func() {
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}
