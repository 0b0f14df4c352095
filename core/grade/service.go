package grade

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/enrollment"
)

var ErrNotFound = core.NewNotFoundError("grade")

type (
	Repository interface {
		CreateGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)
		// QueryGrades returns grades ordered by date, most recent first.
		QueryGrades(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Grade, error)
		CountGrades(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		GetGrade(ctx context.Context, id string, exec ...core.DBExecutor) (Grade, error)
		UpdateGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)
		DeleteGradesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	// Notifier tells a student their grade changed.
	Notifier interface {
		NotifyGradeUpdate(ctx context.Context, studentID, courseName string, score float64) error
	}

	Service struct {
		repo        Repository
		enrollments *enrollment.Service
		notifier    Notifier
		validate    *validator.Validate
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	enrollments *enrollment.Service,
	notifier Notifier,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		enrollments: enrollments,
		notifier:    notifier,
		validate:    validate,
		logger:      logger,
	}
}

// List returns the grades visible to actor.
func (svc *Service) List(ctx context.Context, actor access.Subject, filter QueryFilter) ([]Grade, error) {
	scope, err := access.ListScope(actor, access.ResourceGrade)
	if err != nil {
		return nil, err
	}
	switch scope {
	case access.ScopeOwnCourse:
		filter.TeacherID = actor.UserID
	case access.ScopeSelf:
		filter.StudentUserID = actor.UserID
	}
	return svc.repo.QueryGrades(ctx, &filter)
}

func (svc *Service) Get(ctx context.Context, actor access.Subject, id string) (Grade, error) {
	g, err := svc.repo.GetGrade(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if err = access.Decide(actor, access.ActionRead, target(g)); err != nil {
		return Grade{}, err
	}
	return g, nil
}

// Create grades an enrolled student. Only the course's teacher or an admin may do so.
func (svc *Service) Create(ctx context.Context, actor access.Subject, ng NewGrade) (Grade, error) {
	if access.ScopeFor(actor, access.ActionCreate, access.ResourceGrade) == access.ScopeNone {
		return Grade{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceGrade))
	}
	if err := ng.Validate(svc.validate); err != nil {
		return Grade{}, err
	}

	pair, err := svc.enrollments.Resolve(ctx, ng.StudentID, ng.CourseID)
	if err != nil {
		return Grade{}, err
	}
	if err = access.Decide(actor, access.ActionCreate, pair.Target(access.ResourceGrade)); err != nil {
		return Grade{}, err
	}
	if !pair.Enrolled {
		return Grade{}, enrollment.NotEnrolledError()
	}

	now := core.Now()
	g, err := svc.repo.CreateGrade(ctx, Grade{
		StudentID:       pair.Student.ID,
		CourseID:        pair.Course.ID,
		CourseName:      pair.Course.Name,
		Score:           *ng.Score,
		Date:            core.NewDate(now),
		StudentUserID:   pair.Student.UserID,
		CourseTeacherID: pair.Course.TeacherID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Grade{}, errors.Wrap(err, "creating grade")
	}
	svc.notify(ctx, g)
	return g, nil
}

func (svc *Service) Update(ctx context.Context, actor access.Subject, id string, ug UpdateGrade) (Grade, error) {
	g, err := svc.repo.GetGrade(ctx, id)
	if err != nil {
		return Grade{}, err
	}
	if err = access.Decide(actor, access.ActionUpdate, target(g)); err != nil {
		return Grade{}, err
	}
	if err = ug.Validate(svc.validate); err != nil {
		return Grade{}, err
	}

	now := core.Now()
	g.Score = *ug.Score
	g.Date = core.NewDate(now)
	g.UpdatedAt = now
	if g, err = svc.repo.UpdateGrade(ctx, g); err != nil {
		return Grade{}, errors.Wrap(err, "updating grade")
	}
	svc.notify(ctx, g)
	return g, nil
}

func (svc *Service) Delete(ctx context.Context, actor access.Subject, id string) error {
	g, err := svc.repo.GetGrade(ctx, id)
	if err != nil {
		return err
	}
	if err = access.Decide(actor, access.ActionDelete, target(g)); err != nil {
		return err
	}
	_, err = svc.repo.DeleteGradesByID(ctx, []string{g.ID})
	return errors.Wrap(err, "deleting grade")
}

// notify is best-effort: a failure never undoes the grade write.
func (svc *Service) notify(ctx context.Context, g Grade) {
	if svc.notifier == nil {
		return
	}
	if err := svc.notifier.NotifyGradeUpdate(ctx, g.StudentID, g.CourseName, g.Score); err != nil {
		svc.logger.Error("grade.notify: "+err.Error(), err)
	}
}

func target(g Grade) access.Target {
	return access.Target{
		Resource:        access.ResourceGrade,
		StudentUserID:   g.StudentUserID,
		CourseTeacherID: g.CourseTeacherID,
	}
}
