package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/enrollment"
)

const enrollmentsTable = "enrollments"

type enrollmentRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	CourseID        string    `db:"course_id"`
	StudentName     string    `db:"student_name"`
	CourseName      string    `db:"course_name"`
	CourseTeacherID string    `db:"course_teacher_id"`
	StudentUserID   string    `db:"student_user_id"`
	CreatedAt       time.Time `db:"created_at"`
}

type enrollmentRepository struct {
	baseRepository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{baseRepository{exec: exec}}
}

func (repo enrollmentRepository) fromRow(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		StudentName:     row.StudentName,
		CourseName:      row.CourseName,
		CourseTeacherID: row.CourseTeacherID,
		StudentUserID:   row.StudentUserID,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func (repo enrollmentRepository) selectEnrollments(exe core.DBExecutor) sq.SelectBuilder {
	return repo.builder(exe).
		Select(
			"e.id", "e.student_id", "e.course_id", "u.name AS student_name", "c.name AS course_name",
			"c.teacher_id AS course_teacher_id", "s.user_id AS student_user_id", "e.created_at",
		).
		From(enrollmentsTable + " e").
		Join(studentsTable + " s ON s.id = e.student_id").
		Join(usersTable + " u ON u.id = s.user_id").
		Join(coursesTable + " c ON c.id = e.course_id")
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	exe := repo.getExec(exec)
	e.ID = uuid.New().String()

	b := repo.builder(exe).Insert(enrollmentsTable).
		Columns("id", "student_id", "course_id", "created_at").
		Values(e.ID, e.StudentID, e.CourseID, e.CreatedAt.UTC())
	if _, err := repo.execute(ctx, exe, b); err != nil {
		if isUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter *enrollment.QueryFilter, exec ...core.DBExecutor) ([]enrollment.Enrollment, error) {
	exe := repo.getExec(exec)
	b := repo.selectEnrollments(exe)

	if filter != nil {
		if filter.StudentID != "" {
			b = b.Where(sq.Eq{"e.student_id": filter.StudentID})
		}
		if filter.CourseID != "" {
			b = b.Where(sq.Eq{"e.course_id": filter.CourseID})
		}
		if filter.TeacherID != "" {
			b = b.Where(sq.Eq{"c.teacher_id": filter.TeacherID})
		}
		if filter.StudentUserID != "" {
			b = b.Where(sq.Eq{"s.user_id": filter.StudentUserID})
		}
	}
	b = b.OrderBy("e.created_at DESC")

	var rows []enrollmentRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, repo.fromRow(row))
	}
	return enrollments, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, filter enrollment.GetFilter, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	exe := repo.getExec(exec)
	b := repo.selectEnrollments(exe)

	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"e.id": filter.ID})
	case filter.StudentID != "" && filter.CourseID != "":
		b = b.Where(sq.Eq{"e.student_id": filter.StudentID, "e.course_id": filter.CourseID})
	default:
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}

	var row enrollmentRow
	if err := repo.get(ctx, exe, &row, b.Limit(1)); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return repo.fromRow(row), nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Update(enrollmentsTable).
		Set("student_id", e.StudentID).
		Set("course_id", e.CourseID).
		Where(sq.Eq{"id": e.ID})

	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		if isUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if cnt == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return e, nil
}

func (repo enrollmentRepository) DeleteEnrollmentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, repo.builder(exe).Delete(enrollmentsTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting enrollments")
	}
	return cnt, nil
}
