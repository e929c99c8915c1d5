package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("config loaded",
		"password", "hunter2",
		"redis_auth", "s3cret",
		"addr", "127.0.0.1:6379",
		"empty_secret", "",
		slog.Group("server", slog.String("password", "nested")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}

	if entry["password"] != redactedValue {
		t.Errorf("password = %v, want redacted", entry["password"])
	}
	if entry["redis_auth"] != redactedValue {
		t.Errorf("redis_auth = %v, want redacted", entry["redis_auth"])
	}
	if entry["addr"] != "127.0.0.1:6379" {
		t.Errorf("addr = %v, want unchanged", entry["addr"])
	}
	if entry["empty_secret"] != "" {
		t.Errorf("empty_secret = %v, want empty", entry["empty_secret"])
	}
	server, ok := entry["server"].(map[string]any)
	if !ok {
		t.Fatalf("server group missing: %v", entry)
	}
	if server["password"] != redactedValue {
		t.Errorf("server.password = %v, want redacted", server["password"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"Password":     true,
		"client_token": true,
		"AUTH":         true,
		"hash":         false,
		"field":        false,
	}
	for key, want := range tests {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
