package echoapi

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/analytics"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/enrollment"
	"github.com/trezcool/shule/core/grade"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	Deps struct {
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

	Server struct {
		*http.Server
		app      *echo.Echo
		deps     *Deps
		auth     authenticator
		metrics  *metrics
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps *Deps) *Server {
	conf := deps.Conf
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		auth:     authenticator{conf: conf, users: deps.UserSvc},
		metrics:  newMetrics(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.app.HideBanner = true
	s.app.Debug = conf.Debug

	var handler http.Handler = s.app
	if conf.Tracing.Enabled {
		handler = otelhttp.NewHandler(s.app, conf.AppName)
	}
	s.Server = &http.Server{
		Addr:    conf.Server.Host,
		Handler: handler,
	}
	if !conf.TestMode {
		signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	}

	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(s.metrics.middleware)
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	v1 := s.app.Group("/v1")
	authed := []echo.MiddlewareFunc{s.auth.jwtMiddleware(), s.authenticated}

	registerUserAPI(v1, authed, s.auth, s.deps)
	registerStudentAPI(v1.Group("/students", authed...), s.deps)
	registerCourseAPI(v1.Group("/courses", authed...), s.deps)
	registerEnrollmentAPI(v1.Group("/enrollments", authed...), s.deps)
	registerGradeAPI(v1.Group("/grades", authed...), s.deps)
	registerAttendanceAPI(v1.Group("/attendance", authed...), s.deps)
	registerAnalyticsAPI(v1.Group("/analytics", append(authed, adminMiddleware)...), s.deps)
}

// Start serves until the server is shut down; unexpected errors are sent to Errors().
func (s *Server) Start() {
	s.deps.Logger.Info("API listening on " + s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the executable to shut the server down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.Handler.ServeHTTP(w, r)
}

// TokenFor issues an access token for usr.
func (s *Server) TokenFor(usr user.User) (string, error) {
	return s.auth.generateToken(s.auth.claimsFor(usr))
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
