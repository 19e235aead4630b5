package core

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel controls logger verbosity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// SimpleLogger provides a basic structured logger implementation
type SimpleLogger struct {
	level  LogLevel
	fields map[string]interface{}
}

// NewSimpleLogger creates a new simple logger at the level given by the
// LOG_LEVEL environment variable (default INFO).
func NewSimpleLogger() *SimpleLogger {
	l := &SimpleLogger{
		level:  InfoLevel,
		fields: make(map[string]interface{}),
	}
	l.SetLevel(os.Getenv("LOG_LEVEL"))
	return l
}

// SetLevel sets the logging level from its string name.
func (l *SimpleLogger) SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.level = DebugLevel
	case "INFO":
		l.level = InfoLevel
	case "WARN", "WARNING":
		l.level = WarnLevel
	case "ERROR":
		l.level = ErrorLevel
	}
}

// WithFields returns a logger carrying additional fields.
func (l *SimpleLogger) WithFields(fields map[string]interface{}) *SimpleLogger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &SimpleLogger{level: l.level, fields: newFields}
}

// Debug logs a debug message
func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) {
	if l.level <= DebugLevel {
		l.log("DEBUG", msg, fields)
	}
}

// Info logs an info message
func (l *SimpleLogger) Info(msg string, fields map[string]interface{}) {
	if l.level <= InfoLevel {
		l.log("INFO", msg, fields)
	}
}

// Warn logs a warning message
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{}) {
	if l.level <= WarnLevel {
		l.log("WARN", msg, fields)
	}
}

// Error logs an error message
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) {
	if l.level <= ErrorLevel {
		l.log("ERROR", msg, fields)
	}
}

// log performs the actual logging. Fields are emitted in sorted key order so
// log lines are stable for grepping and tests.
func (l *SimpleLogger) log(level, msg string, fields map[string]interface{}) {
	parts := []string{fmt.Sprintf("[%s]", level), msg}

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, merged[k]))
	}

	log.Println(strings.Join(parts, " "))
}
