package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/analytics"
)

const (
	requestLogsTable      = "api_request_logs"
	coursePopularityTable = "course_popularity"
)

type endpointUsageRow struct {
	Endpoint string `db:"endpoint"`
	Method   string `db:"method"`
	Requests int    `db:"total_requests"`
}

type userActivityRow struct {
	UserID   string `db:"user_id"`
	Username string `db:"username"`
	Requests int    `db:"total_requests"`
}

type coursePopularityRow struct {
	CourseID   string    `db:"course_id"`
	CourseName string    `db:"course_name"`
	Views      int       `db:"views"`
	LastViewed time.Time `db:"last_viewed"`
}

type analyticsRepository struct {
	baseRepository
}

var _ analytics.Repository = (*analyticsRepository)(nil) // interface compliance check

func NewAnalyticsRepository(exec core.DBExecutor) *analyticsRepository {
	return &analyticsRepository{baseRepository{exec: exec}}
}

func (repo analyticsRepository) LogRequest(ctx context.Context, log analytics.APIRequestLog, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Insert(requestLogsTable).
		Columns("id", "user_id", "endpoint", "method", "request_time").
		Values(log.ID, null.NewString(log.UserID, log.UserID != ""), log.Endpoint, log.Method, log.RequestTime.UTC())
	_, err := repo.execute(ctx, exe, b)
	return errors.Wrap(err, "inserting API request log")
}

func (repo analyticsRepository) IncrementCourseView(ctx context.Context, courseID string, at time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Insert(coursePopularityTable).
		Columns("course_id", "views", "last_viewed").
		Values(courseID, 1, at.UTC()).
		Suffix("ON CONFLICT (course_id) DO UPDATE SET views = " + coursePopularityTable + ".views + 1, last_viewed = excluded.last_viewed")
	_, err := repo.execute(ctx, exe, b)
	return errors.Wrap(err, "incrementing course views")
}

func (repo analyticsRepository) APIUsage(ctx context.Context, filter analytics.UsageFilter, exec ...core.DBExecutor) ([]analytics.EndpointUsage, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).
		Select("endpoint", "method", "COUNT(*) AS total_requests").
		From(requestLogsTable).
		GroupBy("endpoint", "method").
		OrderBy("total_requests DESC", "endpoint", "method")
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"request_time": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"request_time": filter.To.UTC()})
	}

	var rows []endpointUsageRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying API usage")
	}
	usage := make([]analytics.EndpointUsage, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, analytics.EndpointUsage(row))
	}
	return usage, nil
}

func (repo analyticsRepository) MostActiveUsers(ctx context.Context, limit int, exec ...core.DBExecutor) ([]analytics.UserActivity, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).
		Select("u.id AS user_id", "COALESCE(u.username, u.email, '') AS username", "COUNT(*) AS total_requests").
		From(requestLogsTable + " l").
		Join(usersTable + " u ON u.id = l.user_id").
		GroupBy("u.id", "u.username", "u.email").
		OrderBy("total_requests DESC", "username").
		Limit(uint64(limit))

	var rows []userActivityRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying most active users")
	}
	activity := make([]analytics.UserActivity, 0, len(rows))
	for _, row := range rows {
		activity = append(activity, analytics.UserActivity(row))
	}
	return activity, nil
}

func (repo analyticsRepository) PopularCourses(ctx context.Context, limit int, exec ...core.DBExecutor) ([]analytics.CoursePopularity, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).
		Select("p.course_id", "c.name AS course_name", "p.views", "p.last_viewed").
		From(coursePopularityTable + " p").
		Join(coursesTable + " c ON c.id = p.course_id").
		OrderBy("p.views DESC", "c.name").
		Limit(uint64(limit))

	var rows []coursePopularityRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying popular courses")
	}
	courses := make([]analytics.CoursePopularity, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, analytics.CoursePopularity{
			CourseID:   row.CourseID,
			CourseName: row.CourseName,
			Views:      row.Views,
			LastViewed: row.LastViewed.UTC(),
		})
	}
	return courses, nil
}
