// Package htest contains small helpers shared by hmdlink tests.
package htest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that routes through t.Log,
// so output is associated with the test that produced it.
func NewLogger(t *testing.T) *slog.Logger {
	return slogt.New(t)
}
