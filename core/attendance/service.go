package attendance

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound      = core.NewNotFoundError("attendance record")
	ErrAlreadyExists = errors.New("attendance for this student, course and date already exists")
)

type (
	Repository interface {
		// CreateRecord returns ErrAlreadyExists if a record of the same (student, course, date) exists.
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// UpsertRecord creates rec, or updates the status of the record of the same (student, course, date).
		UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// QueryRecords returns records ordered by date, most recent first.
		QueryRecords(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Record, error)
		CountRecords(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		GetRecord(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Record, error)
		// UpdateRecord returns ErrAlreadyExists if the new date collides with another record.
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		DeleteRecordsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo        Repository
		students    student.Repository
		enrollments *enrollment.Service
		validate    *validator.Validate
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	students student.Repository,
	enrollments *enrollment.Service,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		students:    students,
		enrollments: enrollments,
		validate:    validate,
		logger:      logger,
	}
}

// List returns the records visible to actor: a student only ever sees their own.
func (svc *Service) List(ctx context.Context, actor access.Subject, filter QueryFilter) ([]Record, error) {
	scope, err := access.ListScope(actor, access.ResourceAttendance)
	if err != nil {
		return nil, err
	}
	switch scope {
	case access.ScopeOwnCourse:
		filter.TeacherID = actor.UserID
	case access.ScopeSelf:
		filter.StudentUserID = actor.UserID
	}
	return svc.repo.QueryRecords(ctx, &filter)
}

func (svc *Service) Get(ctx context.Context, actor access.Subject, id string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return Record{}, err
	}
	if err = access.Decide(actor, access.ActionRead, target(rec)); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Create rejects a second record for the same (student, course, date).
func (svc *Service) Create(ctx context.Context, actor access.Subject, nr NewRecord) (Record, error) {
	if access.ScopeFor(actor, access.ActionCreate, access.ResourceAttendance) == access.ScopeNone {
		return Record{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceAttendance))
	}
	if err := nr.Validate(svc.validate); err != nil {
		return Record{}, err
	}
	if nr.StudentID == "" {
		if actor.Role != user.RoleStudent {
			return Record{}, core.NewFieldValidationError("student_id", "this field is required")
		}
		s, err := svc.students.GetStudent(ctx, student.GetFilter{UserID: actor.UserID})
		if err != nil {
			if errors.Cause(err) == student.ErrNotFound {
				return Record{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceAttendance))
			}
			return Record{}, errors.Wrap(err, "finding student")
		}
		nr.StudentID = s.ID
	}

	pair, err := svc.enrollments.Resolve(ctx, nr.StudentID, nr.CourseID)
	if err != nil {
		return Record{}, err
	}
	if err = access.Decide(actor, access.ActionCreate, pair.Target(access.ResourceAttendance)); err != nil {
		return Record{}, err
	}
	if !pair.Enrolled {
		return Record{}, enrollment.NotEnrolledError()
	}

	rec := newRecord(pair, nr.Date, nr.Status)
	if err = svc.checkUniqueness(ctx, rec); err != nil {
		return Record{}, err
	}
	created, err := svc.repo.CreateRecord(ctx, rec)
	if err != nil {
		return Record{}, trapDuplicate(err, "creating attendance record")
	}
	return created, nil
}

// Mark marks today's attendance of a student to a course as present, creating or updating the record.
// Requesters who may not see the student get an AuthorizationError, even if the student does not exist.
func (svc *Service) Mark(ctx context.Context, actor access.Subject, studentID, courseID string) (Record, error) {
	s, err := svc.students.GetStudent(ctx, student.GetFilter{ID: studentID})
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound && !actor.IsAdmin() {
			return Record{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceAttendance))
		}
		return Record{}, err
	}
	if actor.Role == user.RoleStudent && s.UserID != actor.UserID {
		return Record{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceAttendance))
	}

	pair, err := svc.enrollments.Resolve(ctx, s.ID, courseID)
	if err != nil {
		if core.IsValidationError(err) {
			return Record{}, course.ErrNotFound
		}
		return Record{}, err
	}
	if err = access.Decide(actor, access.ActionCreate, pair.Target(access.ResourceAttendance)); err != nil {
		return Record{}, err
	}
	if !pair.Enrolled {
		return Record{}, enrollment.NotEnrolledError()
	}

	rec, err := svc.repo.UpsertRecord(ctx, newRecord(pair, core.NewDate(core.Today()), StatusPresent))
	if err != nil {
		return Record{}, errors.Wrap(err, "marking attendance")
	}
	return rec, nil
}

func (svc *Service) Update(ctx context.Context, actor access.Subject, id string, ur UpdateRecord) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return Record{}, err
	}
	if err = access.Decide(actor, access.ActionUpdate, target(rec)); err != nil {
		return Record{}, err
	}
	if err = ur.Validate(svc.validate); err != nil {
		return Record{}, err
	}

	if ur.Status != "" {
		rec.Status = ur.Status
	}
	if !ur.Date.IsZero() {
		rec.Date = ur.Date
	}
	if err = svc.checkUniqueness(ctx, rec); err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = core.Now()

	updated, err := svc.repo.UpdateRecord(ctx, rec)
	if err != nil {
		return Record{}, trapDuplicate(err, "updating attendance record")
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, actor access.Subject, id string) error {
	rec, err := svc.repo.GetRecord(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = access.Decide(actor, access.ActionDelete, target(rec)); err != nil {
		return err
	}
	_, err = svc.repo.DeleteRecordsByID(ctx, []string{rec.ID})
	return errors.Wrap(err, "deleting attendance record")
}

func (svc *Service) checkUniqueness(ctx context.Context, rec Record) error {
	existing, err := svc.repo.GetRecord(ctx, GetFilter{StudentID: rec.StudentID, CourseID: rec.CourseID, Date: rec.Date})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "checking attendance uniqueness")
	}
	if existing.ID != rec.ID {
		return duplicateError()
	}
	return nil
}

func trapDuplicate(err error, msg string) error {
	if errors.Cause(err) == ErrAlreadyExists {
		return duplicateError()
	}
	return errors.Wrap(err, msg)
}

func duplicateError() error {
	return core.NewValidationError(ErrAlreadyExists, core.FieldError{Field: "date", Error: ErrAlreadyExists.Error()})
}

func newRecord(pair enrollment.Pair, date core.Date, status Status) Record {
	now := core.Now()
	return Record{
		StudentID:       pair.Student.ID,
		CourseID:        pair.Course.ID,
		CourseName:      pair.Course.Name,
		Date:            date,
		Status:          status,
		StudentUserID:   pair.Student.UserID,
		CourseTeacherID: pair.Course.TeacherID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func target(rec Record) access.Target {
	return access.Target{
		Resource:        access.ResourceAttendance,
		StudentUserID:   rec.StudentUserID,
		CourseTeacherID: rec.CourseTeacherID,
	}
}
