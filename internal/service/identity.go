package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
	"github.com/TheOliver413/taskmanager-back/internal/port/cache"
	"github.com/TheOliver413/taskmanager-back/internal/port/database"
)

const identityLookupConcurrency = 8

// IdentityService answers whether user ids exist. Known users are cached
// with a TTL; unknown ids are always re-checked against the store.
type IdentityService struct {
	store database.Store
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewIdentityService creates an IdentityService. c may be nil to disable
// caching.
func NewIdentityService(store database.Store, c cache.Cache, ttl time.Duration) *IdentityService {
	return &IdentityService{store: store, cache: c, ttl: ttl}
}

func userCacheKey(id int64) string {
	return "user." + strconv.FormatInt(id, 10)
}

// MissingUsers returns the ids that do not name an existing user, in
// request order.
func (s *IdentityService) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	known, err := s.cachedUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	var misses []int64
	for _, id := range ids {
		if !known[id] {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return nil, nil
	}

	found, err := s.findUsers(ctx, misses)
	if err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range misses {
		u, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		s.remember(ctx, u)
	}
	return missing, nil
}

// cachedUsers looks ids up in the cache concurrently. Cache errors count
// as misses.
func (s *IdentityService) cachedUsers(ctx context.Context, ids []int64) (map[int64]bool, error) {
	if s.cache == nil {
		return map[int64]bool{}, nil
	}

	hits := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(identityLookupConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			_, ok, err := s.cache.Get(gctx, userCacheKey(id))
			if err != nil {
				slog.WarnContext(gctx, "user cache lookup failed", "user_id", id, "error", err)
				return nil
			}
			hits[i] = ok
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	known := make(map[int64]bool, len(ids))
	for i, id := range ids {
		if hits[i] {
			known[id] = true
		}
	}
	return known, nil
}

// findUsers loads ids from the store. Concurrent lookups of the same id set
// share one query.
func (s *IdentityService) findUsers(ctx context.Context, ids []int64) (map[int64]user.Summary, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	v, err, _ := s.group.Do(strings.Join(parts, ","), func() (any, error) {
		return s.store.FindUsers(ctx, sorted)
	})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	users, _ := v.([]user.Summary)
	found := make(map[int64]user.Summary, len(users))
	for _, u := range users {
		found[u.ID] = u
	}
	return found, nil
}

func (s *IdentityService) remember(ctx context.Context, u user.Summary) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, userCacheKey(u.ID), data, s.ttl); err != nil {
		slog.WarnContext(ctx, "user cache store failed", "user_id", u.ID, "error", err)
	}
}
