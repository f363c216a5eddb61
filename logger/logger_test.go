package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := toZapLevel(tt.level); got != tt.want {
			t.Fatalf("toZapLevel(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intellilight.log")
	log := New(Config{Level: WarnLevel, File: path, MaxSizeMB: 1})

	log.Named("kasa").With("host", "192.168.1.50").Warnw("Failed to send command", "err", "timeout")
	log.Info("Not written, below the level")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %v", err)
	}
	if entry["logger"] != "kasa" || entry["host"] != "192.168.1.50" || entry["err"] != "timeout" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
