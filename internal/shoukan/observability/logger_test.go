package observability

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/Shoukan/common/trace"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{" WARN ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, slog.LevelInfo, "json")).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	slog.New(NewHandler(&buf, slog.LevelWarn, "text")).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestSetup_File(t *testing.T) {
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })

	path := filepath.Join(t.TempDir(), "shoukan.log")
	closer, err := Setup("info", "text", path)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	WithTrace(trace.WithTraceID(context.Background(), "t_file")).Info("written")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "msg=written") || !strings.Contains(string(b), "trace_id=t_file") {
		t.Errorf("log file = %q", b)
	}
}

func TestSetup_RejectsUnknownLevel(t *testing.T) {
	if _, err := Setup("loud", "text", ""); err == nil {
		t.Error("expected error")
	}
}

func TestWithTrace_NoTrace(t *testing.T) {
	if WithTrace(context.Background()) != slog.Default() {
		t.Error("expected default logger without a trace")
	}
}
