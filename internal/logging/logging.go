package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mf2hd-design/memoscan2/internal/interfaces"
)

// Logger and Field are re-exported so most packages only import logging.
type Logger = interfaces.Logger
type Field = interfaces.Field

// StdoutLogger is a tiny, structured logger. It implements interfaces.Logger
// and prints JSON lines to a writer (stdout by default).
type StdoutLogger struct {
	component string
	fields    []Field
	out       io.Writer
	mu        *sync.Mutex
}

// NewStdoutLogger creates a new simple StdoutLogger. component is optional and
// will be included as a persistent field on every line.
func NewStdoutLogger(component string) *StdoutLogger {
	return &StdoutLogger{component: component, out: os.Stdout, mu: &sync.Mutex{}}
}

// NewWriterLogger is like NewStdoutLogger but writes to w. Used by the
// feedback sinks to reuse the same line format for files.
func NewWriterLogger(component string, w io.Writer) *StdoutLogger {
	return &StdoutLogger{component: component, out: w, mu: &sync.Mutex{}}
}

func (s *StdoutLogger) log(level string, msg string, fields ...Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any)
	for _, f := range s.fields {
		m[f.Key] = f.Value
	}
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		// Fallback simple formatting if JSON marshal fails
		s.mu.Lock()
		fmt.Fprintf(s.out, "%s %s %v\n", level, msg, m)
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	fmt.Fprintln(s.out, string(enc))
	s.mu.Unlock()
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.log("debug", msg, fields...)
}

func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.log("info", msg, fields...)
}

func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.log("warn", msg, fields...)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.log("error", msg, fields...)
}

func (s *StdoutLogger) With(fields ...Field) interfaces.Logger {
	child := &StdoutLogger{component: s.component, out: s.out, mu: s.mu}
	child.fields = append(append([]Field{}, s.fields...), fields...)
	// If fields include a component key, prefer that as the component name
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
			}
		}
	}
	return child
}
