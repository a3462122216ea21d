package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/agenda"
	"github.com/trezcool/shule/core/feed"
	"github.com/trezcool/shule/core/tenant"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	filestoresvc "github.com/trezcool/shule/services/filestore"
	logsvc "github.com/trezcool/shule/services/logger"
	pushsvc "github.com/trezcool/shule/services/push"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	db, err := setUpDB()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	var pushSvc core.PushService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
		pushSvc = pushsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
		pushSvc = pushsvc.NewFCMService(logger)
	}
	fileStore := filestoresvc.NewDiskStorage()

	usrRepo := sqlxrepos.NewUserRepository(db)
	tenantRepo := sqlxrepos.NewTenantRepository(db)
	academicRepo := sqlxrepos.NewAcademicRepository(db)
	agendaRepo := sqlxrepos.NewAgendaRepository(db)
	feedRepo := sqlxrepos.NewFeedRepository(db)

	resolver := access.NewResolver(academicRepo)

	usrSvc := user.NewService(usrRepo, mailSvc)
	tenantSvc := tenant.NewService(tenantRepo)
	academicSvc := academic.NewService(academicRepo, usrRepo, resolver)
	agendaSvc := agenda.NewService(agendaRepo, academicRepo, usrRepo, resolver, pushSvc, logger)
	feedSvc := feed.NewService(feedRepo, academicRepo, usrRepo, resolver, fileStore, pushSvc, logger)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:     ":" + core.Conf.Server.Port,
			Logger:      logger,
			UserSvc:     usrSvc,
			TenantSvc:   tenantSvc,
			AcademicSvc: academicSvc,
			AgendaSvc:   agendaSvc,
			FeedSvc:     feedSvc,
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
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
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

func setUpDB() (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return nil, err
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
