package echoapi

import (
	"context"
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

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		UserSvc        user.Service
		SubjectSvc     subject.Service
		LessonSvc      lesson.Service
		QuizSvc        quiz.Service
		RankingSvc     ranking.Service
		DisableReqLogs bool
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		jwtConf  middleware.JWTConfig
		shutdown chan os.Signal
		errors   chan error
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		jwtConf:    newJWTConfig(deps.Conf),
		shutdown:   make(chan os.Signal, 1),
		errors:     make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	debug := s.Conf.Debug

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)
	s.app.Debug = debug

	s.app.GET("/", s.home)
	if s.Conf.Storage.Driver == "fs" {
		s.app.Static("/storage", s.Conf.Storage.RootDir)
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwtConf)

	// students (and admins browsing as students)
	sg := v1.Group("", jwt, s.sessionMiddleware)
	// admin panel
	ag := v1.Group("/admin", jwt, s.sessionMiddleware, s.adminMiddleware)

	registerAuthAPI(v1.Group("/auth"), jwt, s)
	registerSubjectAPI(sg, ag, s.SubjectSvc)
	registerLessonAPI(sg, ag, s.LessonSvc, s.Conf.Storage.MaxPDFSize)
	registerQuizAPI(sg, ag, s.QuizSvc, s.Validate)
	registerRankingAPI(sg, ag, s.RankingSvc)
	registerStudentAPI(ag, s.UserSvc)
	registerProfileAPI(sg, s.UserSvc, s.Conf.Storage.MaxImageSize)
}

// Start runs the HTTP server until it is shut down; failures are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

// Close stops the server immediately.
func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
