package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureReportLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("report level rejected: %v", err)
	}
	if log.GetLevel().String() != "info" {
		t.Fatalf("report should map to info, got %s", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "optionflow.log")
	log := Logger()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatalf("file output rejected: %v", err)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestJSONOutputFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	log.WithComponent("analyzer").WithFields(Fields{"symbol": "NIFTY"}).Info("cycle done")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if payload["message"] != "cycle done" || payload["symbol"] != "NIFTY" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if file, _ := payload["file"].(string); !strings.HasPrefix(file, "logger_test.go:") {
		t.Fatalf("caller should point at the call site, got %q", file)
	}
}

func TestWarnAndErrorCounted(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	before := Snapshot()
	log.WithComponent("counter_test").Warn("w")
	log.WithComponent("counter_test").Error("e")
	after := Snapshot()

	if after.Warnings["counter_test"] != before.Warnings["counter_test"]+1 {
		t.Fatalf("warning not counted: %v", after.Warnings)
	}
	if after.Errors["counter_test"] != before.Errors["counter_test"]+1 {
		t.Fatalf("error not counted: %v", after.Errors)
	}
}

func TestReportCounters(t *testing.T) {
	before := Snapshot()

	IncrementFetch(true, 128)
	IncrementFetch(false, 0)
	IncrementAnalysis(true)
	IncrementAnalysis(false)

	after := Snapshot()
	if after.Fetches != before.Fetches+1 || after.FetchFailures != before.FetchFailures+1 {
		t.Fatalf("fetch counters wrong: before=%+v after=%+v", before, after)
	}
	if after.Analyses != before.Analyses+1 || after.Unavailable != before.Unavailable+1 {
		t.Fatalf("analysis counters wrong: before=%+v after=%+v", before, after)
	}
	if after.Channels["nse_fetch"]["bytes"] < 128 {
		t.Fatalf("channel bytes not recorded: %v", after.Channels)
	}
}

func TestStartReportStopsWithContext(t *testing.T) {
	var buf lockedBuffer
	log := Logger()
	log.SetOutput(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	StartReport(ctx, log, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	if !strings.Contains(buf.String(), "runtime report") {
		t.Fatalf("expected a runtime report, got %q", buf.String())
	}
}
