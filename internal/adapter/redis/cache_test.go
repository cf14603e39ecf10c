package redis

import (
	"context"
	"os"
	"testing"

	"github.com/TheOliver413/taskmanager-back/internal/port/cache/cachetest"
)

func TestCompliance(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("requires REDIS_URL")
	}
	c, err := Connect(context.Background(), url, "taskmanager-test:")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	cachetest.RunCompliance(t, c)
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not a url", "p:"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
