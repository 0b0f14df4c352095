package enrollment

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("enrollment")
	ErrAlreadyEnrolled = errors.New("the student is already enrolled in this course")
	ErrNotEnrolled     = errors.New("the student is not enrolled in this course")

	errStudentNotFound = "student not found"
	errCourseNotFound  = "course not found"
	errRequired        = "this field is required"
)

type (
	Repository interface {
		// CreateEnrollment returns ErrAlreadyEnrolled if the pair already exists.
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Enrollment, error)
		GetEnrollment(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Enrollment, error)
		// UpdateEnrollment returns ErrAlreadyEnrolled if the new pair already exists.
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		DeleteEnrollmentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo     Repository
		students student.Repository
		courses  course.Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	students student.Repository,
	courses course.Repository,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		students: students,
		courses:  courses,
		validate: validate,
		logger:   logger,
	}
}

// List returns the enrollments visible to actor.
func (svc *Service) List(ctx context.Context, actor access.Subject, filter QueryFilter) ([]Enrollment, error) {
	scope, err := access.ListScope(actor, access.ResourceEnrollment)
	if err != nil {
		return nil, err
	}
	switch scope {
	case access.ScopeOwnCourse:
		filter.TeacherID = actor.UserID
	case access.ScopeSelf:
		filter.StudentUserID = actor.UserID
	}
	return svc.repo.QueryEnrollments(ctx, &filter)
}

func (svc *Service) Get(ctx context.Context, actor access.Subject, id string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, GetFilter{ID: id})
	if err != nil {
		return Enrollment{}, err
	}
	if err = access.Decide(actor, access.ActionRead, target(e)); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// Pair is a student and a course looked up before writing one of their grades or attendance records.
type Pair struct {
	Student  student.Student
	Course   course.Course
	Enrolled bool
}

// Target returns the access target of a record of resource belonging to the pair.
func (p Pair) Target(resource access.Resource) access.Target {
	return access.Target{Resource: resource, StudentUserID: p.Student.UserID, CourseTeacherID: p.Course.TeacherID}
}

// Resolve looks up a student and a course and tells whether the student is enrolled in the course.
// Unknown ids are reported as ValidationErrors on `student_id` or `course_id`.
func (svc *Service) Resolve(ctx context.Context, studentID, courseID string) (Pair, error) {
	var p Pair
	var err error
	if p.Student, err = findStudent(ctx, svc.students, studentID); err != nil {
		return Pair{}, err
	}
	if p.Course, err = findCourse(ctx, svc.courses, courseID); err != nil {
		return Pair{}, err
	}
	_, err = svc.repo.GetEnrollment(ctx, GetFilter{StudentID: p.Student.ID, CourseID: p.Course.ID})
	switch {
	case err == nil:
		p.Enrolled = true
	case errors.Cause(err) != ErrNotFound:
		return Pair{}, errors.Wrap(err, "finding enrollment")
	}
	return p, nil
}

// Create enrolls a student in a course. A student always enrolls themself.
func (svc *Service) Create(ctx context.Context, actor access.Subject, ne NewEnrollment) (Enrollment, error) {
	if access.ScopeFor(actor, access.ActionCreate, access.ResourceEnrollment) == access.ScopeNone {
		return Enrollment{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceEnrollment))
	}
	if err := ne.Validate(svc.validate); err != nil {
		return Enrollment{}, err
	}

	var s student.Student
	var err error
	if actor.Role == user.RoleStudent {
		if s, err = svc.students.GetStudent(ctx, student.GetFilter{UserID: actor.UserID}); err != nil {
			if errors.Cause(err) == student.ErrNotFound {
				return Enrollment{}, core.NewAuthorizationError(string(access.ActionCreate), string(access.ResourceEnrollment))
			}
			return Enrollment{}, errors.Wrap(err, "finding student")
		}
	} else {
		if ne.StudentID == "" {
			return Enrollment{}, core.NewFieldValidationError("student_id", errRequired)
		}
		if s, err = findStudent(ctx, svc.students, ne.StudentID); err != nil {
			return Enrollment{}, err
		}
	}
	c, err := findCourse(ctx, svc.courses, ne.CourseID)
	if err != nil {
		return Enrollment{}, err
	}

	e := Enrollment{
		StudentID:       s.ID,
		CourseID:        c.ID,
		StudentName:     s.Name,
		CourseName:      c.Name,
		CourseTeacherID: c.TeacherID,
		StudentUserID:   s.UserID,
		CreatedAt:       core.Now(),
	}
	if err = access.Decide(actor, access.ActionCreate, target(e)); err != nil {
		return Enrollment{}, err
	}
	if err = svc.checkUniqueness(ctx, e); err != nil {
		return Enrollment{}, err
	}

	created, err := svc.repo.CreateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, svc.trapDuplicate(err, "creating enrollment")
	}
	return created, nil
}

// Update moves an enrollment to another student or course.
func (svc *Service) Update(ctx context.Context, actor access.Subject, id string, ue UpdateEnrollment) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, GetFilter{ID: id})
	if err != nil {
		return Enrollment{}, err
	}
	if err = access.Decide(actor, access.ActionUpdate, target(e)); err != nil {
		return Enrollment{}, err
	}
	ue.Clean()

	if ue.StudentID != "" && ue.StudentID != e.StudentID {
		s, err := findStudent(ctx, svc.students, ue.StudentID)
		if err != nil {
			return Enrollment{}, err
		}
		e.StudentID, e.StudentName, e.StudentUserID = s.ID, s.Name, s.UserID
	}
	if ue.CourseID != "" && ue.CourseID != e.CourseID {
		c, err := findCourse(ctx, svc.courses, ue.CourseID)
		if err != nil {
			return Enrollment{}, err
		}
		e.CourseID, e.CourseName, e.CourseTeacherID = c.ID, c.Name, c.TeacherID
	}
	if err = svc.checkUniqueness(ctx, e); err != nil {
		return Enrollment{}, err
	}

	updated, err := svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, svc.trapDuplicate(err, "updating enrollment")
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, actor access.Subject, id string) error {
	e, err := svc.repo.GetEnrollment(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = access.Decide(actor, access.ActionDelete, target(e)); err != nil {
		return err
	}
	_, err = svc.repo.DeleteEnrollmentsByID(ctx, []string{e.ID})
	return errors.Wrap(err, "deleting enrollment")
}

// checkUniqueness fails if another enrollment already links e's student and course.
func (svc *Service) checkUniqueness(ctx context.Context, e Enrollment) error {
	existing, err := svc.repo.GetEnrollment(ctx, GetFilter{StudentID: e.StudentID, CourseID: e.CourseID})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "checking enrollment uniqueness")
	}
	if existing.ID != e.ID {
		return duplicateError()
	}
	return nil
}

// trapDuplicate maps a unique violation caught by the DB to a ValidationError.
func (svc *Service) trapDuplicate(err error, msg string) error {
	if errors.Cause(err) == ErrAlreadyEnrolled {
		return duplicateError()
	}
	return errors.Wrap(err, msg)
}

func duplicateError() error {
	return core.NewValidationError(ErrAlreadyEnrolled, core.FieldError{Field: "course_id", Error: ErrAlreadyEnrolled.Error()})
}

// NotEnrolledError is the ValidationError of a grade or attendance write for a student outside the course.
func NotEnrolledError() error {
	return core.NewValidationError(ErrNotEnrolled, core.FieldError{Field: "student_id", Error: ErrNotEnrolled.Error()})
}

func findStudent(ctx context.Context, repo student.Repository, id string) (student.Student, error) {
	s, err := repo.GetStudent(ctx, student.GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Student{}, core.NewFieldValidationError("student_id", errStudentNotFound)
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	return s, nil
}

func findCourse(ctx context.Context, repo course.Repository, id string) (course.Course, error) {
	c, err := repo.GetCourse(ctx, id)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return course.Course{}, core.NewFieldValidationError("course_id", errCourseNotFound)
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return c, nil
}

func target(e Enrollment) access.Target {
	return access.Target{
		Resource:        access.ResourceEnrollment,
		StudentUserID:   e.StudentUserID,
		CourseTeacherID: e.CourseTeacherID,
	}
}
