package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/shule/apps/di"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	appfs "github.com/trezcool/shule/fs"
	"github.com/trezcool/shule/services/scheduler"
)

func main() {
	logger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	code := 0

	c := di.New()
	err := c.Invoke(func(
		conf *core.Config,
		appLogger core.Logger,
		db *sqlx.DB,
		users *user.Service,
		_ *student.Service, // registers the student profile hooks
		_ *course.Service, // registers the course cache hooks
		notifier scheduler.Notifier,
		mailSvc core.EmailService,
		validate *validator.Validate,
	) {
		defer func() { _ = db.Close() }()
		if w, ok := mailSvc.(core.EmailWaiter); ok {
			defer w.Wait()
		}

		core.ParseEmailTemplates(appfs.FS, conf, appLogger)
		user.LoadCommonPasswords(appfs.FS, appLogger)

		cli := commandLine{
			db:       db,
			users:    users,
			notifier: notifier,
			validate: validate,
			out:      os.Stdout,
		}
		if err := cli.run(context.Background(), os.Args); err != nil {
			if err != errHelp {
				logger.Printf("\nerror: %s\n", err)
			}
			code = 1
		}
	})
	if err != nil {
		logger.Fatal(err)
	}
	os.Exit(code)
}
