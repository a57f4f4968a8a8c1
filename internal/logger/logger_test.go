package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yanun0323/logs"
)

func captureAt(t *testing.T, level logs.Level) *bytes.Buffer {
	t.Helper()
	prev := logs.Default()
	t.Cleanup(func() { logs.SetDefault(prev) })

	var buf bytes.Buffer
	logs.SetDefault(logs.New(level, &logs.Option{Format: logs.FormatJSON, Output: &buf}))
	return &buf
}

func TestWarnUsesWarnLevel(t *testing.T) {
	buf := captureAt(t, logs.LevelWarn)

	Info("[INGEST] fetched %d rows", 12)
	Warn("[INGEST] %s: feed slow", "AAPL")

	out := buf.String()
	if strings.Contains(out, "fetched 12 rows") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, "[INGEST] AAPL: feed slow") {
		t.Fatalf("expected a WARN record, got: %s", out)
	}
}

func TestErrorUsesErrorLevel(t *testing.T) {
	buf := captureAt(t, logs.LevelError)

	Warn("[API] slow request")
	Error("[DB] %v", "connection reset")

	out := buf.String()
	if strings.Contains(out, "slow request") {
		t.Fatalf("warn line should be filtered at error level: %s", out)
	}
	if !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("expected an ERROR record, got: %s", out)
	}
}
