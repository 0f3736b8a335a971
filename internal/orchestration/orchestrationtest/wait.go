package orchestrationtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WaitForCondition polls cond until it returns true or timeout elapses,
// failing the test if it never does.
func WaitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}
