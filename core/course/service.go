package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("course")

	// orderable fields -> columns
	Orderings = map[string]string{
		"name":       "c.name",
		"created_at": "c.created_at",
		"updated_at": "c.updated_at",
	}

	errNotATeacher = "the course teacher must be an existing user with the teacher role"
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		// QueryCourses returns courses ordered by name unless ordering says otherwise.
		// QueryFilter.Search does a case-insensitive match on the course name.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	// ViewRecorder counts course views.
	ViewRecorder interface {
		RecordCourseView(ctx context.Context, courseID string) error
	}

	Service struct {
		repo     Repository
		users    *user.Service
		views    ViewRecorder
		cache    core.Cache
		ttl      time.Duration
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	users *user.Service,
	views ViewRecorder,
	cache core.Cache,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	svc := &Service{
		repo:     repo,
		users:    users,
		views:    views,
		cache:    cache,
		ttl:      conf.Cache.TTL,
		validate: validate,
		logger:   logger,
	}
	users.OnDelete(svc.onUsersDeleted)
	users.OnUpdate(svc.onUserUpdated)
	return svc
}

// onUsersDeleted drops the cached courses of deleted teachers, which the DB deletes in cascade.
func (svc *Service) onUsersDeleted(ctx context.Context, ids []string, tx *core.Tx) error {
	courses, err := svc.repo.QueryCourses(ctx, &QueryFilter{TeacherIDs: ids}, nil, tx)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if len(courses) > 0 {
		cids := make([]string, 0, len(courses))
		for _, c := range courses {
			cids = append(cids, c.ID)
		}
		tx.OnCommit(func() { svc.invalidate(ctx, cids...) })
	}
	return nil
}

// onUserUpdated drops the cached courses showing the teacher's previous name.
func (svc *Service) onUserUpdated(ctx context.Context, usr user.User) {
	if usr.Role != user.RoleTeacher {
		return
	}
	courses, err := svc.repo.QueryCourses(ctx, &QueryFilter{TeacherIDs: []string{usr.ID}}, nil)
	if err != nil {
		svc.logger.Error("course.onUserUpdated: "+err.Error(), err)
	}
	cids := make([]string, 0, len(courses))
	for _, c := range courses {
		cids = append(cids, c.ID)
	}
	svc.invalidate(ctx, cids...)
}

// invalidate drops the courses list, the popular courses and the detail of ids from the cache.
func (svc *Service) invalidate(ctx context.Context, ids ...string) {
	keys := []string{core.CacheKeyCoursesList, core.CacheKeyPopularCourses}
	for _, id := range ids {
		keys = append(keys, core.CourseCacheKey(id))
	}
	if err := core.Invalidate(ctx, svc.cache, keys...); err != nil {
		svc.logger.Error("course.invalidate: "+err.Error(), err)
	}
}

// List reads the unfiltered, default-ordered list through the cache.
func (svc *Service) List(ctx context.Context, actor access.Subject, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if _, err := access.ListScope(actor, access.ResourceCourse); err != nil {
		return nil, err
	}
	ordering = core.FilterOrderings(ordering, Orderings)

	if filter.IsEmpty() && len(ordering) == 0 {
		return core.GetOrPopulate(ctx, svc.cache, svc.logger, core.CacheKeyCoursesList, svc.ttl, func() ([]Course, error) {
			return svc.repo.QueryCourses(ctx, nil, nil)
		})
	}
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

// Get returns a course and counts the view.
func (svc *Service) Get(ctx context.Context, actor access.Subject, id string) (Course, error) {
	c, err := core.GetOrPopulate(ctx, svc.cache, svc.logger, core.CourseCacheKey(id), svc.ttl, func() (Course, error) {
		return svc.repo.GetCourse(ctx, id)
	})
	if err != nil {
		return Course{}, err
	}
	if err = access.Decide(actor, access.ActionRead, target(c)); err != nil {
		return Course{}, err
	}

	if svc.views != nil {
		if err = svc.views.RecordCourseView(ctx, c.ID); err != nil {
			svc.logger.Error("course.Get: recording view: "+err.Error(), err)
		}
	}
	return c, nil
}

func (svc *Service) checkTeacher(ctx context.Context, teacherID string) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewFieldValidationError("teacher_id", errNotATeacher)
		}
		return user.User{}, errors.Wrap(err, "finding teacher")
	}
	if !usr.IsTeacher() {
		return user.User{}, core.NewFieldValidationError("teacher_id", errNotATeacher)
	}
	return usr, nil
}

func (svc *Service) Create(ctx context.Context, actor access.Subject, nc NewCourse) (Course, error) {
	if err := access.Decide(actor, access.ActionCreate, access.Target{Resource: access.ResourceCourse}); err != nil {
		return Course{}, err
	}
	if err := nc.Validate(svc.validate); err != nil {
		return Course{}, err
	}
	teacher, err := svc.checkTeacher(ctx, nc.TeacherID)
	if err != nil {
		return Course{}, err
	}

	now := core.Now()
	c, err := svc.repo.CreateCourse(ctx, Course{
		Name:        nc.Name,
		Description: nc.Description,
		TeacherID:   teacher.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	c.TeacherName = teacher.Name
	svc.invalidate(ctx, c.ID)
	return c, nil
}

func (svc *Service) Update(ctx context.Context, actor access.Subject, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if err = access.Decide(actor, access.ActionUpdate, target(c)); err != nil {
		return Course{}, err
	}
	if err = uc.Validate(svc.validate); err != nil {
		return Course{}, err
	}

	if uc.Name != "" {
		c.Name = uc.Name
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.TeacherID != "" && uc.TeacherID != c.TeacherID {
		teacher, err := svc.checkTeacher(ctx, uc.TeacherID)
		if err != nil {
			return Course{}, err
		}
		c.TeacherID, c.TeacherName = teacher.ID, teacher.Name
	}
	c.UpdatedAt = core.Now()

	if c, err = svc.repo.UpdateCourse(ctx, c); err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	svc.invalidate(ctx, c.ID)
	return c, nil
}

func (svc *Service) Delete(ctx context.Context, actor access.Subject, id string) error {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if err = access.Decide(actor, access.ActionDelete, target(c)); err != nil {
		return err
	}
	if _, err = svc.repo.DeleteCoursesByID(ctx, []string{c.ID}); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	svc.invalidate(ctx, c.ID)
	return nil
}

func target(c Course) access.Target {
	return access.Target{Resource: access.ResourceCourse, CourseTeacherID: c.TeacherID}
}
