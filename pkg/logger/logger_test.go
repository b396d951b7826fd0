package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With(String("symbol", "BTCUSDT"))
	l.Warn("indicator failed",
		String("indicator", "ema_trend"),
		Int("candles", 60),
		Float64("score", 12.5),
		Duration("took", 1500*time.Millisecond),
		Bool("partial", true),
		Error(errors.New("boom")),
	)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	want := map[string]any{
		"level":     "warn",
		"message":   "indicator failed",
		"symbol":    "BTCUSDT",
		"indicator": "ema_trend",
		"candles":   float64(60),
		"score":     12.5,
		"took":      float64(1500),
		"partial":   true,
		"error":     "boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s: got %v want %v", k, got[k], v)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}
