package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/attendance"
)

const attendanceTable = "attendance"

type attendanceRow struct {
	ID              string    `db:"id"`
	StudentID       string    `db:"student_id"`
	CourseID        string    `db:"course_id"`
	CourseName      string    `db:"course_name"`
	Date            core.Date `db:"date"`
	Status          string    `db:"status"`
	StudentUserID   string    `db:"student_user_id"`
	CourseTeacherID string    `db:"course_teacher_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type attendanceRepository struct {
	baseRepository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{baseRepository{exec: exec}}
}

func (repo attendanceRepository) fromRow(row attendanceRow) attendance.Record {
	return attendance.Record{
		ID:              row.ID,
		StudentID:       row.StudentID,
		CourseID:        row.CourseID,
		CourseName:      row.CourseName,
		Date:            row.Date,
		Status:          attendance.Status(row.Status),
		StudentUserID:   row.StudentUserID,
		CourseTeacherID: row.CourseTeacherID,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo attendanceRepository) scoped(b sq.SelectBuilder) sq.SelectBuilder {
	return b.From(attendanceTable + " a").
		Join(studentsTable + " s ON s.id = a.student_id").
		Join(coursesTable + " c ON c.id = a.course_id")
}

func (repo attendanceRepository) selectRecords(exe core.DBExecutor) sq.SelectBuilder {
	return repo.scoped(repo.builder(exe).Select(
		"a.id", "a.student_id", "a.course_id", "c.name AS course_name", "a.date", "a.status",
		"s.user_id AS student_user_id", "c.teacher_id AS course_teacher_id", "a.created_at", "a.updated_at",
	))
}

func (repo attendanceRepository) filter(b sq.SelectBuilder, filter *attendance.QueryFilter) sq.SelectBuilder {
	if filter == nil {
		return b
	}
	if filter.StudentID != "" {
		b = b.Where(sq.Eq{"a.student_id": filter.StudentID})
	}
	if filter.CourseID != "" {
		b = b.Where(sq.Eq{"a.course_id": filter.CourseID})
	}
	if !filter.Date.IsZero() {
		b = b.Where(sq.Eq{"a.date": filter.Date})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"a.status": string(filter.Status)})
	}
	if filter.TeacherID != "" {
		b = b.Where(sq.Eq{"c.teacher_id": filter.TeacherID})
	}
	if filter.StudentUserID != "" {
		b = b.Where(sq.Eq{"s.user_id": filter.StudentUserID})
	}
	return b
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := repo.getExec(exec)
	rec.ID = uuid.New().String()

	b := repo.builder(exe).Insert(attendanceTable).
		Columns("id", "student_id", "course_id", "date", "status", "created_at", "updated_at").
		Values(rec.ID, rec.StudentID, rec.CourseID, rec.Date, string(rec.Status), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if _, err := repo.execute(ctx, exe, b); err != nil {
		if isUniqueViolation(err) {
			return attendance.Record{}, attendance.ErrAlreadyExists
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	return rec, nil
}

// UpsertRecord relies on the (student_id, course_id, date) unique index: ON CONFLICT works on both engines.
func (repo attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := repo.getExec(exec)

	b := repo.builder(exe).Insert(attendanceTable).
		Columns("id", "student_id", "course_id", "date", "status", "created_at", "updated_at").
		Values(uuid.New().String(), rec.StudentID, rec.CourseID, rec.Date, string(rec.Status), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()).
		Suffix("ON CONFLICT (student_id, course_id, date) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at")
	if _, err := repo.execute(ctx, exe, b); err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return repo.GetRecord(ctx, attendance.GetFilter{StudentID: rec.StudentID, CourseID: rec.CourseID, Date: rec.Date}, exe)
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	exe := repo.getExec(exec)
	b := repo.filter(repo.selectRecords(exe), filter).OrderBy("a.date DESC", "c.name")

	var rows []attendanceRow
	if err := repo.selectAll(ctx, exe, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, repo.fromRow(row))
	}
	return records, nil
}

func (repo attendanceRepository) CountRecords(ctx context.Context, filter *attendance.QueryFilter, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.count(ctx, exe, repo.filter(repo.scoped(repo.builder(exe).Select("COUNT(*)")), filter))
	return cnt, errors.Wrap(err, "counting attendance records")
}

func (repo attendanceRepository) GetRecord(ctx context.Context, filter attendance.GetFilter, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := repo.getExec(exec)
	b := repo.selectRecords(exe)

	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"a.id": filter.ID})
	case filter.StudentID != "" && filter.CourseID != "" && !filter.Date.IsZero():
		b = b.Where(sq.Eq{"a.student_id": filter.StudentID, "a.course_id": filter.CourseID, "a.date": filter.Date})
	default:
		return attendance.Record{}, attendance.ErrNotFound
	}

	var row attendanceRow
	if err := repo.get(ctx, exe, &row, b.Limit(1)); err != nil {
		return attendance.Record{}, trapNoRowsErr(err, attendance.ErrNotFound, "finding attendance record")
	}
	return repo.fromRow(row), nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := repo.getExec(exec)
	b := repo.builder(exe).Update(attendanceTable).SetMap(map[string]interface{}{
		"date":       rec.Date,
		"status":     string(rec.Status),
		"updated_at": rec.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": rec.ID})

	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		if isUniqueViolation(err) {
			return attendance.Record{}, attendance.ErrAlreadyExists
		}
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if cnt == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

func (repo attendanceRepository) DeleteRecordsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, repo.builder(exe).Delete(attendanceTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting attendance records")
	}
	return cnt, nil
}
