// Package testutil provides testing utilities for edsync
package testutil

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/edsync/pkg/models"
)

// TestContext creates a context with a 30-second timeout, cancelled when
// the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// RequireEnv returns the value of the environment variable name, skipping
// the test when it is unset or when running in short mode. Integration
// tests against real services use it to find their endpoint.
func RequireEnv(t *testing.T, name string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	value := os.Getenv(name)
	if value == "" {
		t.Skipf("Skipping integration test. Set %s to run", name)
	}
	return value
}

// DecodePartition parses a newline-delimited partition body.
func DecodePartition(t *testing.T, body []byte) []models.ShapedRecord {
	t.Helper()

	var records []models.ShapedRecord
	for _, line := range bytes.Split(body, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec models.ShapedRecord
		require.NoError(t, stdjson.Unmarshal(line, &rec), "line %q", line)
		records = append(records, rec)
	}
	return records
}
