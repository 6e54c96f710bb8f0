package logger

import (
	"fmt"
	"strings"
	"testing"
)

var _ Logger = Test{}

// Test is a logger.Logger implementation using a testing.TB instance.
type Test struct{ tb testing.TB }

// NewTest returns a new logger using the provided testing.TB instance.
func NewTest(tb testing.TB) Test {
	return Test{tb: tb}
}

// Debug uses Logf to print a debug message.
func (t Test) Debug(msg string, fields ...Field) {
	t.tb.Helper()
	t.tb.Logf("[debug] %s %s", msg, formatFields(fields))
}

// Info uses Logf to print an info message.
func (t Test) Info(msg string, fields ...Field) {
	t.tb.Helper()
	t.tb.Logf("[info] %s %s", msg, formatFields(fields))
}

// Error uses Logf to print an error message.
func (t Test) Error(msg string, fields ...Field) {
	t.tb.Helper()
	t.tb.Logf("[error] %s %s", msg, formatFields(fields))
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("{")

	for i, field := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}

		fmt.Fprintf(&sb, "%s: %v", field.Key, field.Value)
	}

	sb.WriteString("}")

	return sb.String()
}
