package logger

import (
	"os"

	"github.com/charmbracelet/log"
)

// Level aliases so callers don't import charmbracelet/log directly.
const (
	DEBUG = log.DebugLevel
	INFO  = log.InfoLevel
	WARN  = log.WarnLevel
	ERROR = log.ErrorLevel
)

var std = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

// SetLevel adjusts the global log level.
func SetLevel(level log.Level) {
	std.SetLevel(level)
}

// InfoCF logs an info message tagged with a component and structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	std.Info(msg, kv(component, fields)...)
}

// WarnCF logs a warning tagged with a component and structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	std.Warn(msg, kv(component, fields)...)
}

// ErrorCF logs an error tagged with a component and structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	std.Error(msg, kv(component, fields)...)
}

// DebugCF logs a debug message tagged with a component and structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	std.Debug(msg, kv(component, fields)...)
}

func kv(component string, fields map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, 2+len(fields)*2)
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
