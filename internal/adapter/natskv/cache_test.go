package natskv

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/adapter/nats"
	"github.com/TheOliver413/taskmanager-back/internal/port/cache/cachetest"
)

func TestKVKey(t *testing.T) {
	tests := []struct {
		key    string
		hashed bool
	}{
		{"user.42", false},
		{"idem.7.POST./tasks.abc-123", false},
		{"idem.7.POST./tasks.key with spaces", true},
		{"idem.7.POST./tasks.ключ", true},
	}
	for _, tt := range tests {
		got := kvKey(tt.key)
		if tt.hashed {
			if !strings.HasPrefix(got, "h.") || len(got) != 2+64 {
				t.Errorf("kvKey(%q) = %q, want hashed key", tt.key, got)
			}
			continue
		}
		if got != tt.key {
			t.Errorf("kvKey(%q) = %q, want unchanged", tt.key, got)
		}
	}
	if kvKey("a b") != kvKey("a b") {
		t.Error("hashing must be deterministic")
	}
}

func TestCompliance(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	ctx := context.Background()
	q, err := nats.Connect(ctx, url, "TASKMANAGER_TEST", "test.>")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer q.Close() //nolint:errcheck // test cleanup

	kv, err := q.KeyValue(ctx, "TEST_CACHE", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	cachetest.RunCompliance(t, New(kv))
}
