package observability

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn")
	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level")
	}

	log.WithField("realm", "user").Warn("kept")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line: %v", err)
	}
	if entry["realm"] != "user" || entry["msg"] != "kept" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	if lvl := NewLogger("loud").GetLevel(); lvl != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", lvl)
	}
}

func TestObserveUpstream(t *testing.T) {
	m := NewMetrics()
	m.ObserveUpstream("user", "GET", "ok", 20*time.Millisecond)
	m.ObserveUpstream("user", "GET", "ok", 10*time.Millisecond)
	m.ObserveUpstream("admin", "POST", "unauthorized", time.Millisecond)

	if got := testutil.ToFloat64(m.upstreamCalls.WithLabelValues("user", "GET", "ok")); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.upstreamCalls.WithLabelValues("admin", "POST", "unauthorized")); got != 1 {
		t.Fatalf("expected 1 unauthorized call, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveUpstream("user", "GET", "ok", time.Millisecond)
}
