// Package cachetest holds a behavioural suite every cache.Cache adapter
// must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/port/cache"
)

// RunCompliance runs the standard suite against c. Keys are prefixed with
// the test name so a shared remote backend can be reused across runs.
func RunCompliance(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return t.Name() + "." + k }

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, key("user.7"), []byte("1"), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, key("user.7"))
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "1" {
			t.Fatalf("expected 1, got %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, key("never-set"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for unknown key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, key("del"), []byte("x"), time.Minute)
		if err := c.Delete(ctx, key("del")); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, key("del"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := c.Delete(ctx, key("never-existed")); err != nil {
			t.Fatalf("Delete of missing key should not error, got %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, key("ow"), []byte("v1"), time.Minute)
		_ = c.Set(ctx, key("ow"), []byte("v2"), time.Minute)
		val, found, err := c.Get(ctx, key("ow"))
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q (found=%v)", val, found)
		}
	})
}
