package partition

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readLocal(t *testing.T, location string) []byte {
	t.Helper()
	require.True(t, strings.HasPrefix(location, "file://"))
	body, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
	require.NoError(t, err)
	return body
}
