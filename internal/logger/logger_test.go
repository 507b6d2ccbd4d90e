package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestNew_JSONCarriesServiceTimeMsg(t *testing.T) {
	var buf bytes.Buffer
	l, closer := New(Config{}, &buf)
	defer func() { _ = closer.Close() }()

	l.Info("Starting cloudflared tunnel", "forward", "http://localhost:8080")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["service"] != DefaultService {
		t.Fatalf("service = %v, want %s", rec["service"], DefaultService)
	}
	if rec["msg"] != "Starting cloudflared tunnel" {
		t.Fatalf("msg = %v", rec["msg"])
	}
	if rec["forward"] != "http://localhost:8080" {
		t.Fatalf("forward = %v", rec["forward"])
	}
	ts, _ := rec["time"].(string)
	if !strings.HasSuffix(ts, "Z") || !strings.Contains(ts, ".") {
		t.Fatalf("time not RFC3339 millis UTC: %q", ts)
	}
}

func TestNew_CustomServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Service: "edge", Level: "warn"}, &buf)
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"service":"edge"`) {
		t.Fatalf("expected custom service in %s", out)
	}
}

func TestNew_WritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "forwarder.log")
	var buf bytes.Buffer
	l, closer := New(Config{File: FileConfig{Path: path}}, &buf)
	l.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("record missing from file or stdout")
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	if w := (FileConfig{}).Writer(); w != nil {
		t.Fatalf("expected nil writer without path")
	}
	w := FileConfig{Path: filepath.Join(t.TempDir(), "x.log")}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorTextHandler_KeepsColorAfterWith(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Format: FormatText, Color: true}, &buf)
	l.Error("boom")
	out := buf.String()
	// the text handler quotes the message, so the escape shows up escaped
	if !strings.Contains(out, `\x1b[31mERROR`) {
		t.Fatalf("expected red escape in %q", out)
	}
	if !strings.Contains(out, "service=forwarder") {
		t.Fatalf("expected service attribute in %q", out)
	}
}
