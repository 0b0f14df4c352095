package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type (
	Repository interface {
		LogRequest(ctx context.Context, log APIRequestLog, exec ...core.DBExecutor) error
		// IncrementCourseView adds one view to the course, created with a single view if absent.
		IncrementCourseView(ctx context.Context, courseID string, at time.Time, exec ...core.DBExecutor) error
		// APIUsage counts requests per endpoint and method, busiest first.
		APIUsage(ctx context.Context, filter UsageFilter, exec ...core.DBExecutor) ([]EndpointUsage, error)
		// MostActiveUsers counts requests per user, most active first.
		MostActiveUsers(ctx context.Context, limit int, exec ...core.DBExecutor) ([]UserActivity, error)
		// PopularCourses returns the most viewed courses first.
		PopularCourses(ctx context.Context, limit int, exec ...core.DBExecutor) ([]CoursePopularity, error)
	}

	Service struct {
		repo   Repository
		cache  core.Cache
		ttl    time.Duration
		logger core.Logger
	}
)

func NewService(repo Repository, cache core.Cache, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		ttl:    conf.Cache.TTL,
		logger: logger,
	}
}

func (svc *Service) RecordRequest(ctx context.Context, userID, endpoint, method string) error {
	err := svc.repo.LogRequest(ctx, APIRequestLog{
		ID:          uuid.New().String(),
		UserID:      userID,
		Endpoint:    endpoint,
		Method:      method,
		RequestTime: core.Now(),
	})
	return errors.Wrap(err, "logging API request")
}

func (svc *Service) RecordCourseView(ctx context.Context, courseID string) error {
	return errors.Wrap(svc.repo.IncrementCourseView(ctx, courseID, core.Now()), "recording course view")
}

func (svc *Service) authorize(actor access.Subject) error {
	return access.Decide(actor, access.ActionList, access.Target{Resource: access.ResourceAnalytics})
}

func (svc *Service) APIUsage(ctx context.Context, actor access.Subject, filter UsageFilter) ([]EndpointUsage, error) {
	if err := svc.authorize(actor); err != nil {
		return nil, err
	}
	return svc.repo.APIUsage(ctx, filter)
}

func (svc *Service) MostActiveUsers(ctx context.Context, actor access.Subject, limit int) ([]UserActivity, error) {
	if err := svc.authorize(actor); err != nil {
		return nil, err
	}
	return svc.repo.MostActiveUsers(ctx, clampLimit(limit))
}

// PopularCourses reads the top courses through the cache.
func (svc *Service) PopularCourses(ctx context.Context, actor access.Subject, limit int) ([]CoursePopularity, error) {
	if err := svc.authorize(actor); err != nil {
		return nil, err
	}
	courses, err := core.GetOrPopulate(ctx, svc.cache, svc.logger, core.CacheKeyPopularCourses, svc.ttl, func() ([]CoursePopularity, error) {
		return svc.repo.PopularCourses(ctx, MaxLimit)
	})
	if err != nil {
		return nil, err
	}
	if limit = clampLimit(limit); len(courses) > limit {
		courses = courses[:limit]
	}
	return courses, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
