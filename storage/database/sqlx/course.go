package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
)

const coursesTable = "courses"

type courseRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	TeacherID   string    `db:"teacher_id"`
	TeacherName string    `db:"teacher_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{baseRepository{exec: exec}}
}

func (repo courseRepository) fromRow(row courseRow) course.Course {
	return course.Course{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		TeacherID:   row.TeacherID,
		TeacherName: row.TeacherName,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) selectCourses(exe core.DBExecutor) sq.SelectBuilder {
	return repo.builder(exe).
		Select("c.id", "c.name", "c.description", "c.teacher_id", "u.name AS teacher_name", "c.created_at", "c.updated_at").
		From(coursesTable + " c").
		Join(usersTable + " u ON u.id = c.teacher_id")
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)
	c.ID = uuid.New().String()

	b := repo.builder(exe).Insert(coursesTable).
		Columns("id", "name", "description", "teacher_id", "created_at", "updated_at").
		Values(c.ID, c.Name, c.Description, c.TeacherID, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if _, err := repo.execute(ctx, exe, b); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	exe := repo.getExec(exec)
	b := repo.selectCourses(exe)

	if filter != nil {
		if filter.TeacherIDs != nil {
			b = b.Where(sq.Eq{"c.teacher_id": filter.TeacherIDs})
		}
		if filter.Search != "" {
			b = b.Where(ilike(filter.Search, "c.name"))
		}
	}
	b = orderBy(b, ordering, "c.name", "c.created_at")

	var rows []courseRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.fromRow(row))
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if id == "" {
		return course.Course{}, course.ErrNotFound
	}
	exe := repo.getExec(exec)

	var row courseRow
	if err := repo.get(ctx, exe, &row, repo.selectCourses(exe).Where(sq.Eq{"c.id": id})); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.fromRow(row), nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Update(coursesTable).SetMap(map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
		"teacher_id":  c.TeacherID,
		"updated_at":  c.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": c.ID})

	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if cnt == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo courseRepository) DeleteCoursesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, repo.builder(exe).Delete(coursesTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	return cnt, nil
}
