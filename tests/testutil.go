// Package testutil sets up throwaway databases, services & fixtures for the tests.
package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/analytics"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	cachesvc "github.com/trezcool/shule/services/cache"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// Password satisfies the password policy.
const Password = "Xk9#mQ2$vLp"

func init() {
	goose.SetLogger(log.New(io.Discard, "", 0))
}

// PrepareDB returns a migrated SQLite database, removed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open(database.EngineSQLite, database.SQLiteDSN(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}

// NewValidator returns a validator with every custom validation registered, and its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

// Env holds a fully wired set of repositories & services over a fresh database.
type Env struct {
	DB         *sqlx.DB
	Conf       *core.Config
	Logger     core.Logger
	Cache      *CacheSpy
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *emailsvc.ConsoleServiceMock

	UserRepo       user.Repository
	StudentRepo    student.Repository
	CourseRepo     course.Repository
	EnrollmentRepo enrollment.Repository
	GradeRepo      grade.Repository
	AttendanceRepo attendance.Repository
	AnalyticsRepo  analytics.Repository

	Users         *user.Service
	Students      *student.Service
	Courses       *course.Service
	Enrollments   *enrollment.Service
	Grades        *grade.Service
	Attendance    *attendance.Service
	Notifications *notification.Service
	Analytics     *analytics.Service
}

// NewEnv wires every service the way the executables do, with a recording mailer and a spied in-memory cache.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(appfs.FS, conf, logger)

	db := PrepareDB(t)
	validate, translator := NewValidator()
	env := &Env{
		DB:         db,
		Conf:       conf,
		Logger:     logger,
		Cache:      NewCacheSpy(cachesvc.NewMemoryCache(conf.Cache.TTL)),
		Validate:   validate,
		Translator: translator,
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),

		UserRepo:       sqlxrepos.NewUserRepository(db),
		StudentRepo:    sqlxrepos.NewStudentRepository(db),
		CourseRepo:     sqlxrepos.NewCourseRepository(db),
		EnrollmentRepo: sqlxrepos.NewEnrollmentRepository(db),
		GradeRepo:      sqlxrepos.NewGradeRepository(db),
		AttendanceRepo: sqlxrepos.NewAttendanceRepository(db),
		AnalyticsRepo:  sqlxrepos.NewAnalyticsRepository(db),
	}

	env.Users = user.NewService(db, env.UserRepo, env.Mail, conf)
	env.Analytics = analytics.NewService(env.AnalyticsRepo, env.Cache, conf, logger)
	env.Students = student.NewService(env.StudentRepo, env.Users, env.Cache, env.Validate, conf, logger)
	env.Courses = course.NewService(env.CourseRepo, env.Users, env.Analytics, env.Cache, env.Validate, conf, logger)
	env.Enrollments = enrollment.NewService(env.EnrollmentRepo, env.StudentRepo, env.CourseRepo, env.Validate, logger)
	env.Notifications = notification.NewService(env.Mail, env.StudentRepo, env.GradeRepo, env.AttendanceRepo, conf, logger)
	env.Grades = grade.NewService(env.GradeRepo, env.Enrollments, env.Notifications, env.Validate, logger)
	env.Attendance = attendance.NewService(env.AttendanceRepo, env.StudentRepo, env.Enrollments, env.Validate, logger)
	return env
}

// CreateUser inserts an active user, bypassing validation. Students also get their profile.
func (env *Env) CreateUser(t *testing.T, name, uname string, role user.Role) user.User {
	t.Helper()
	usr, err := env.Users.Create(context.Background(), user.NewUser{
		Name:     name,
		Username: uname,
		Email:    uname + "@school.test",
		Password: Password,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateStudent inserts a student user and returns their profile.
func (env *Env) CreateStudent(t *testing.T, name, uname string) (user.User, student.Student) {
	t.Helper()
	usr := env.CreateUser(t, name, uname, user.RoleStudent)
	s, err := env.StudentRepo.GetStudent(context.Background(), student.GetFilter{UserID: usr.ID})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return usr, s
}

func (env *Env) CreateCourse(t *testing.T, name string, teacher user.User) course.Course {
	t.Helper()
	now := core.Now()
	c, err := env.CourseRepo.CreateCourse(context.Background(), course.Course{
		Name:      name,
		TeacherID: teacher.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	c.TeacherName = teacher.Name
	return c
}

func (env *Env) Enroll(t *testing.T, s student.Student, c course.Course) enrollment.Enrollment {
	t.Helper()
	e, err := env.EnrollmentRepo.CreateEnrollment(context.Background(), enrollment.Enrollment{
		StudentID: s.ID,
		CourseID:  c.ID,
		CreatedAt: core.Now(),
	})
	if err != nil {
		t.Fatalf("Enroll(): %v", err)
	}
	return e
}

func (env *Env) CreateGrade(t *testing.T, s student.Student, c course.Course, score float64, date time.Time) grade.Grade {
	t.Helper()
	now := core.Now()
	g, err := env.GradeRepo.CreateGrade(context.Background(), grade.Grade{
		StudentID: s.ID,
		CourseID:  c.ID,
		Score:     score,
		Date:      core.NewDate(date),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateGrade(): %v", err)
	}
	return g
}

func (env *Env) CreateRecord(t *testing.T, s student.Student, c course.Course, date time.Time, status attendance.Status) attendance.Record {
	t.Helper()
	now := core.Now()
	rec, err := env.AttendanceRepo.CreateRecord(context.Background(), attendance.Record{
		StudentID: s.ID,
		CourseID:  c.ID,
		Date:      core.NewDate(date),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateRecord(): %v", err)
	}
	return rec
}

// FreezeTime sets core.NowFunc to return now until the end of the test.
func FreezeTime(t *testing.T, now time.Time) {
	t.Helper()
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = time.Now })
}
