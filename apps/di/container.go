// Package di wires the executables' dependencies with a dig container.
package di

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/analytics"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	cachesvc "github.com/trezcool/shule/services/cache"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/scheduler"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

// DBLoggerParam injects the logger of the database layer.
type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// ServerParams are the dependencies of the API server.
type ServerParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	StudentSvc    *student.Service
	CourseSvc     *course.Service
	EnrollmentSvc *enrollment.Service
	GradeSvc      *grade.Service
	AttendanceSvc *attendance.Service
	AnalyticsSvc  *analytics.Service
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, conf.AppName+" : ", log.LstdFlags), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to %s database", db.DriverName()))
	return db, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
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

func newCache(conf *core.Config) (core.Cache, error) {
	return cachesvc.New(context.Background(), conf)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		StudentSvc:    p.StudentSvc,
		CourseSvc:     p.CourseSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		GradeSvc:      p.GradeSvc,
		AttendanceSvc: p.AttendanceSvc,
		AnalyticsSvc:  p.AnalyticsSvc,
	})
}

// New returns a dig container providing every service; conf is loaded by core.NewConfig.
func New() *dig.Container {
	return NewWithConfig(core.NewConfig)
}

// NewWithConfig is New with a custom config constructor.
func NewWithConfig(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(func(db *sqlx.DB) core.DB { return db }))
	must(c.Provide(func(db *sqlx.DB) core.DBExecutor { return db }))
	must(c.Provide(newEmailService))
	must(c.Provide(newCache))
	must(c.Provide(NewValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewGradeRepository, dig.As(new(grade.Repository))))
	must(c.Provide(sqlxrepos.NewAttendanceRepository, dig.As(new(attendance.Repository))))
	must(c.Provide(sqlxrepos.NewAnalyticsRepository, dig.As(new(analytics.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(analytics.NewService))
	must(c.Provide(func(svc *analytics.Service) course.ViewRecorder { return svc }))
	must(c.Provide(student.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(func(svc *notification.Service) grade.Notifier { return svc }))
	must(c.Provide(func(svc *notification.Service) scheduler.Notifier { return svc }))
	must(c.Provide(grade.NewService))
	must(c.Provide(attendance.NewService))

	// executables
	must(c.Provide(newServer))
	must(c.Provide(scheduler.New))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
