// Command worker runs the scheduled notifications: attendance reminders, the daily report & the weekly summaries.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/shule/apps/di"
	"github.com/trezcool/shule/core"
	appfs "github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/scheduler"
	"github.com/trezcool/shule/services/tracing"
)

func main() {
	c := di.New()

	must(c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		db *sqlx.DB,
		mailSvc core.EmailService,
		sch *scheduler.Scheduler,
	) {
		logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
		defer logger.Info("Worker stopped")
		defer func() { _ = db.Close() }()

		core.ParseEmailTemplates(appfs.FS, conf, logger)

		shutdownTracing, err := tracing.Setup(context.Background(), conf.AppName+"-worker", conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up tracing: %v", err), err)
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		sch.Start()
		logger.Info(fmt.Sprintf("%d job(s) scheduled", sch.Jobs()))

		sig := <-shutdown
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// running jobs get the shutdown timeout to complete
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := sch.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
		}
		if err := shutdownTracing(ctx); err != nil {
			logger.Error(fmt.Sprintf("flushing traces: %v", err), err)
		}
		if w, ok := mailSvc.(core.EmailWaiter); ok {
			w.Wait()
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
