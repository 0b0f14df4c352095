package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/grade"
)

const gradesTable = "grades"

type gradeRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	CourseID        string    `db:"course_id"`
	CourseName      string    `db:"course_name"`
	Score           float64   `db:"score"`
	Date            core.Date `db:"date"`
	StudentUserID   string    `db:"student_user_id"`
	CourseTeacherID string    `db:"course_teacher_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type gradeRepository struct {
	baseRepository
}

var _ grade.Repository = (*gradeRepository)(nil) // interface compliance check

func NewGradeRepository(exec core.DBExecutor) *gradeRepository {
	return &gradeRepository{baseRepository{exec: exec}}
}

func (repo gradeRepository) fromRow(row gradeRow) grade.Grade {
	return grade.Grade{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		CourseName:      row.CourseName,
		Score:           row.Score,
		Date:            row.Date,
		StudentUserID:   row.StudentUserID,
		CourseTeacherID: row.CourseTeacherID,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

// scoped joins the tables the access scope and the projections need.
func (repo gradeRepository) scoped(b sq.SelectBuilder) sq.SelectBuilder {
	return b.From(gradesTable + " g").
		Join(studentsTable + " s ON s.id = g.student_id").
		Join(coursesTable + " c ON c.id = g.course_id")
}

func (repo gradeRepository) selectGrades(exe core.DBExecutor) sq.SelectBuilder {
	return repo.scoped(repo.builder(exe).Select(
		"g.id", "g.student_id", "g.course_id", "c.name AS course_name", "g.score", "g.date",
		"s.user_id AS student_user_id", "c.teacher_id AS course_teacher_id", "g.created_at", "g.updated_at",
	))
}

func (repo gradeRepository) filter(b sq.SelectBuilder, filter *grade.QueryFilter) sq.SelectBuilder {
	if filter == nil {
		return b
	}
	if filter.StudentID != "" {
		b = b.Where(sq.Eq{"g.student_id": filter.StudentID})
	}
	if filter.CourseID != "" {
		b = b.Where(sq.Eq{"g.course_id": filter.CourseID})
	}
	if !filter.Date.IsZero() {
		b = b.Where(sq.Eq{"g.date": filter.Date})
	}
	if filter.TeacherID != "" {
		b = b.Where(sq.Eq{"c.teacher_id": filter.TeacherID})
	}
	if filter.StudentUserID != "" {
		b = b.Where(sq.Eq{"s.user_id": filter.StudentUserID})
	}
	return b
}

func (repo gradeRepository) CreateGrade(ctx context.Context, g grade.Grade, exec ...core.DBExecutor) (grade.Grade, error) {
	exe := repo.getExec(exec)
	g.ID = uuid.New().String()

	b := repo.builder(exe).Insert(gradesTable).
		Columns("id", "student_id", "course_id", "score", "date", "created_at", "updated_at").
		Values(g.ID, g.StudentID, g.CourseID, g.Score, g.Date, g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if _, err := repo.execute(ctx, exe, b); err != nil {
		return grade.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return g, nil
}

func (repo gradeRepository) QueryGrades(ctx context.Context, filter *grade.QueryFilter, exec ...core.DBExecutor) ([]grade.Grade, error) {
	exe := repo.getExec(exec)
	b := repo.filter(repo.selectGrades(exe), filter).OrderBy("g.date DESC", "g.updated_at DESC")

	var rows []gradeRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, repo.fromRow(row))
	}
	return grades, nil
}

func (repo gradeRepository) CountGrades(ctx context.Context, filter *grade.QueryFilter, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.count(ctx, exe, repo.filter(repo.scoped(repo.builder(exe).Select("COUNT(*)")), filter))
	return cnt, errors.Wrap(err, "counting grades")
}

func (repo gradeRepository) GetGrade(ctx context.Context, id string, exec ...core.DBExecutor) (grade.Grade, error) {
	if id == "" {
		return grade.Grade{}, grade.ErrNotFound
	}
	exe := repo.getExec(exec)

	var row gradeRow
	if err := repo.get(ctx, exe, &row, repo.selectGrades(exe).Where(sq.Eq{"g.id": id})); err != nil {
		return grade.Grade{}, trapNoRowsErr(err, grade.ErrNotFound, "finding grade")
	}
	return repo.fromRow(row), nil
}

func (repo gradeRepository) UpdateGrade(ctx context.Context, g grade.Grade, exec ...core.DBExecutor) (grade.Grade, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Update(gradesTable).SetMap(map[string]interface{}{
		"score":      g.Score,
		"date":       g.Date,
		"updated_at": g.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": g.ID})

	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		return grade.Grade{}, errors.Wrap(err, "updating grade")
	}
	if cnt == 0 {
		return grade.Grade{}, grade.ErrNotFound
	}
	return g, nil
}

func (repo gradeRepository) DeleteGradesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, repo.builder(exe).Delete(gradesTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting grades")
	}
	return cnt, nil
}
