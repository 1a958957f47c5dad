package logger

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelWarn, ParseLevel(" warn "))
	assert.Equal(t, LevelError, ParseLevel("Error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestStdLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelWarn)
	ctx := context.Background()

	l.Debug(ctx, "dropped")
	l.Info(ctx, "dropped too")
	l.Warn(ctx, "kept")
	l.Error(ctx, fmt.Errorf("boom"), "kept as well")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "[WARN] kept")
	assert.Contains(t, out, "[ERROR] kept as well | error: boom")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestStdLogger_FieldsSortedAndMerged(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)

	l.Info(context.Background(), "order opened",
		map[string]interface{}{"pair": "XBT/USD", "volume": "1.5"},
		map[string]interface{}{"txid": "OABC-1", "volume": "2.0"},
	)

	out := buf.String()
	assert.Contains(t, out, "[INFO] order opened | pair=XBT/USD txid=OABC-1 volume=2.0")
}

func TestStdLogger_NilFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLoggerTo(&buf, LevelDebug)

	l.Info(context.Background(), "plain message", nil)

	out := buf.String()
	assert.Contains(t, out, "[INFO] plain message")
	assert.NotContains(t, out, "|")
}
