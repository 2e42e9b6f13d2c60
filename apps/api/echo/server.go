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

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/absence"
	"github.com/chantio/chantio/core/chat"
	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

type (
	// SocketServer upgrades an authenticated request to a websocket connection.
	SocketServer interface {
		ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
	}

	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         user.Service
		AbsenceSvc      *absence.Service
		InterventionSvc *intervention.Service
		ChatSvc         *chat.Service
		UploadSvc       *upload.Service
		Sockets         SocketServer
		Validate        *validator.Validate
		Translator      ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, syscall.SIGINT, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf
	initJWTConfig(conf)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.deps.UserSvc, s.deps.Validate)
	registerAbsenceAPI(v1, jwt, s.deps.AbsenceSvc, s.deps.UserSvc, s.deps.Validate)
	registerInterventionAPI(v1, jwt, s.deps.InterventionSvc, s.deps.UploadSvc, s.deps.UserSvc, s.deps.Validate)
	registerChatAPI(v1, jwt, s.deps.ChatSvc, s.deps.UploadSvc, s.deps.UserSvc, s.deps.Validate)
	registerUploadAPI(v1, jwt, s.deps.UploadSvc, s.deps.UserSvc)
	if s.deps.Sockets != nil {
		registerSocketAPI(v1, s.deps.Sockets, s.deps.UserSvc)
	}
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errs <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errs
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// signalShutdown requests a graceful shutdown when an integrity issue is caught.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Chantio API!")
}
