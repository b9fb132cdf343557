package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Info("slot loaded", Str("slot", "hellodemo"), Int("index", 3))

	line := buf.String()
	require.Contains(t, line, `"msg":"slot loaded"`)
	require.Contains(t, line, `"slot":"hellodemo"`)
	require.Contains(t, line, `"index":"3"`)
}

func TestErrorFieldIncludesMessage(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Error("plugin failed", Err(errors.New("boom")))
	require.Contains(t, buf.String(), "boom")
}

func TestWithBindsFieldsToEveryLine(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf)
	slotLogger := base.With(Str("slot", "hellodemo"))

	slotLogger.Info("first")
	slotLogger.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		require.Contains(t, line, `"slot":"hellodemo"`)
	}
}

func TestNewDiscardWritesNothing(t *testing.T) {
	log := NewDiscard()
	log.Info("swallowed", Str("k", "v"))
	// No assertion beyond "does not panic": io.Discard has no observable
	// state, the point is this is safe to call with no writer configured.
}

func TestReactorLoggerAdapterDelegates(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf)
	adapter := base.ReactorLogger()

	adapter.Warn("overrun")
	adapter.Error("wait failed")

	out := buf.String()
	require.Contains(t, out, "overrun")
	require.Contains(t, out, "wait failed")
}
