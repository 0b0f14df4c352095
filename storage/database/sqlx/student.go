package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

const studentsTable = "students"

type studentRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	DOB       null.Time   `db:"dob"`
	Name      string      `db:"name"`
	Username  null.String `db:"username"`
	Email     null.String `db:"email"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type studentRepository struct {
	baseRepository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{baseRepository{exec: exec}}
}

func (repo studentRepository) fromRow(row studentRow) student.Student {
	s := student.Student{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		Username:  row.Username.String,
		Email:     row.Email.String,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
	if row.DOB.Valid {
		s.DOB = core.NewDate(row.DOB.Time)
	}
	return s
}

func (repo studentRepository) dob(s student.Student) null.Time {
	return null.NewTime(core.TruncateDate(s.DOB.Time), !s.DOB.IsZero())
}

func (repo studentRepository) selectStudents(exe core.DBExecutor) sq.SelectBuilder {
	return repo.builder(exe).
		Select("s.id", "s.user_id", "s.dob", "u.name", "u.username", "u.email", "s.created_at", "s.updated_at").
		From(studentsTable + " s").
		Join(usersTable + " u ON u.id = s.user_id")
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	s.ID = uuid.New().String()

	b := repo.builder(exe).Insert(studentsTable).
		Columns("id", "user_id", "dob", "created_at", "updated_at").
		Values(s.ID, s.UserID, repo.dob(s), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if _, err := repo.execute(ctx, exe, b); err != nil {
		if isUniqueViolation(err) {
			return student.Student{}, core.NewFieldValidationError("user_id", "this user already has a student profile")
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	exe := repo.getExec(exec)
	b := repo.selectStudents(exe)

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(ilike(filter.Search, "u.name", "u.username", "u.email"))
		}
		if filter.UserIDs != nil {
			b = b.Where(sq.Eq{"s.user_id": filter.UserIDs})
		}
	}
	b = b.OrderBy("u.name", "s.created_at")

	var rows []studentRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.fromRow(row))
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	b := repo.selectStudents(exe)

	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"s.id": filter.ID})
	case filter.UserID != "":
		b = b.Where(sq.Eq{"s.user_id": filter.UserID})
	default:
		return student.Student{}, student.ErrNotFound
	}

	var row studentRow
	if err := repo.get(ctx, exe, &row, b.Limit(1)); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return repo.fromRow(row), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	exe := repo.getExec(exec)
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = core.Now()
	}

	b := repo.builder(exe).Update(studentsTable).
		Set("dob", repo.dob(s)).
		Set("updated_at", s.UpdatedAt.UTC()).
		Where(sq.Eq{"id": s.ID})
	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if cnt == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return s, nil
}

func (repo studentRepository) DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, repo.builder(exe).Delete(studentsTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting students")
	}
	return cnt, nil
}
