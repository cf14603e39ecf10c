package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/port/database/databasetest"
)

func TestIdentityService_MissingUsers(t *testing.T) {
	store := databasetest.NewStore(databasetest.Users()...)
	c := newMemCache()
	svc := NewIdentityService(store, c, time.Minute)
	ctx := context.Background()

	missing, err := svc.MissingUsers(ctx, []int64{42, 2, 7, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalIDs(missing, []int64{42, 7}) {
		t.Fatalf("expected [42 7] in request order, got %v", missing)
	}
	if store.FindUsersCalls() != 1 {
		t.Fatalf("expected 1 store lookup, got %d", store.FindUsersCalls())
	}

	missing, err = svc.MissingUsers(ctx, []int64{2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing users, got %v", missing)
	}
	if store.FindUsersCalls() != 1 {
		t.Fatalf("expected cached users to skip the store, got %d lookups", store.FindUsersCalls())
	}
}

func TestIdentityService_UnknownNotCached(t *testing.T) {
	store := databasetest.NewStore(databasetest.Users()...)
	svc := NewIdentityService(store, newMemCache(), time.Minute)
	ctx := context.Background()

	for range 2 {
		if _, err := svc.MissingUsers(ctx, []int64{99}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if store.FindUsersCalls() != 2 {
		t.Fatalf("expected unknown id to be re-checked, got %d lookups", store.FindUsersCalls())
	}
}

func TestIdentityService_CacheErrorFallsBackToStore(t *testing.T) {
	store := databasetest.NewStore(databasetest.Users()...)
	c := newMemCache()
	c.err = errors.New("cache down")
	svc := NewIdentityService(store, c, time.Minute)

	missing, err := svc.MissingUsers(context.Background(), []int64{1, 99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !equalIDs(missing, []int64{99}) {
		t.Fatalf("expected [99], got %v", missing)
	}
}

func TestIdentityService_StoreError(t *testing.T) {
	store := databasetest.NewStore(databasetest.Users()...)
	store.FindUsersErr = errors.New("db down")
	svc := NewIdentityService(store, nil, time.Minute)

	if _, err := svc.MissingUsers(context.Background(), []int64{1}); !errors.Is(err, store.FindUsersErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
