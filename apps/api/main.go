package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/chantio/chantio/apps/api/echo"
	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/absence"
	"github.com/chantio/chantio/core/chat"
	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
	emailsvc "github.com/chantio/chantio/services/email"
	logsvc "github.com/chantio/chantio/services/logger"
	notifsvc "github.com/chantio/chantio/services/notifier"
	mongodb "github.com/chantio/chantio/storage/database/mongo"
	"github.com/chantio/chantio/storage/filestore"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	client, db, err := mongodb.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			logger.Error(fmt.Sprintf("disconnecting database: %v", err), err)
		}
	}()
	if err = mongodb.EnsureIndexes(context.Background(), db); err != nil {
		logger.Fatal(fmt.Sprintf("creating indexes: %v", err), err)
	}

	// set up file store
	store, err := filestore.NewDiskStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	hub := notifsvc.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	usrSvc := user.NewService(mongodb.NewUserRepository(db), mailSvc, conf)
	absSvc := absence.NewService(mongodb.NewAbsenceRepository(db), usrSvc, mailSvc, hub)
	uplSvc := upload.NewService(mongodb.NewUploadRepository(db), store, hub, logger, conf)
	ivSvc := intervention.NewService(mongodb.NewInterventionRepository(db), usrSvc, mailSvc, hub)
	chatSvc := chat.NewService(mongodb.NewChatRepository(db), hub)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			UserSvc:         usrSvc,
			AbsenceSvc:      absSvc,
			InterventionSvc: ivSvc,
			ChatSvc:         chatSvc,
			UploadSvc:       uplSvc,
			Sockets:         hub,
			Validate:        validate,
			Translator:      translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
