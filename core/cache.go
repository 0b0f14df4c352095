package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Cache keys
const (
	CacheKeyCoursesList    = "courses_list"
	CacheKeyStudentsList   = "students_list"
	CacheKeyPopularCourses = "popular_courses"
)

func CourseCacheKey(id string) string  { return "course_" + id }
func StudentCacheKey(id string) string { return "student_" + id }

// Cache stores JSON-serializable values under string keys.
type Cache interface {
	// Get decodes the value stored under key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GetOrPopulate returns the value cached under key, or loads, caches and returns it.
// Cache failures never fail the read: they are logged and the loader result is used.
// Concurrent misses may all call the loader.
func GetOrPopulate[T any](
	ctx context.Context,
	cache Cache,
	logger Logger,
	key string,
	ttl time.Duration,
	loader func() (T, error),
) (T, error) {
	var val T
	if cache != nil {
		found, err := cache.Get(ctx, key, &val)
		if err == nil && found {
			return val, nil
		}
		if err != nil && logger != nil {
			logger.Warn("cache get: "+key, err)
		}
	}

	val, err := loader()
	if err != nil {
		return val, err
	}

	if cache != nil {
		if err = cache.Set(ctx, key, val, ttl); err != nil && logger != nil {
			logger.Warn("cache set: "+key, err)
		}
	}
	return val, nil
}

// Invalidate deletes keys from the cache.
func Invalidate(ctx context.Context, cache Cache, keys ...string) error {
	if cache == nil || len(keys) == 0 {
		return nil
	}
	return errors.Wrap(cache.Delete(ctx, keys...), "invalidating cache")
}
