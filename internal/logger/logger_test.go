package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopedLoggerCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	SetLevel("debug")
	t.Cleanup(func() { SetLevel("info") })

	With("symbol", "BTCUSDT").With("worker", 1).Debugf("tick %.1f", 25.0)

	out := buf.String()
	assert.Contains(t, out, "symbol=BTCUSDT")
	assert.Contains(t, out, "worker=1")
	assert.Contains(t, out, "tick 25.0")
}

func TestSetLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	SetLevel("warn")
	t.Cleanup(func() { SetLevel("info") })

	Infof("hidden")
	Warnf("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, "warn", Level())
}
