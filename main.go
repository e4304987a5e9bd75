package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/cron"
	"github.com/customeros/mailpulse/internal/database"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/server"
	"github.com/customeros/mailpulse/services"
)

const checkConnectTimeout = 2 * time.Minute

func main() {
	app := &cli.App{
		Name:  "mailpulse",
		Usage: "mailbox ingestion and feedback analysis service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
			{
				Name:   "dedupe",
				Usage:  "Remove records sharing subject, sender and timestamp",
				Action: runDedupe,
			},
			{
				Name:   "check",
				Usage:  "Connect to the mailbox and run a single fetch cycle",
				Action: runCheck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config initialization failed")
	}
	if cfg == nil {
		return nil, nil, errors.New("config is empty")
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, errors.Wrap(err, "database initialization failed")
	}
	return cfg, db, nil
}

func runMigrate(*cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runServer(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	// the schema is ensured on every start
	if err := repository.Migrate(db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("MailPulse starting up...")

	srv, err := server.NewServer(c.Context, cfg, db)
	if err != nil {
		return errors.Wrap(err, "server setup failed")
	}
	if err := srv.Run(); err != nil {
		return errors.Wrap(err, "server stopped")
	}

	log.Println("Shutdown complete")
	return nil
}

func runDedupe(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	appLogger := newLogger(cfg)
	defer appLogger.Sync()

	repos := repository.InitRepositories(db)
	removed, err := cron.NewCronManager(cfg.CronConfig, appLogger, repos.MailRecordRepository).PurgeDuplicates(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d duplicate records\n", removed)
	return nil
}

func runCheck(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	appLogger := newLogger(cfg)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	svcs, err := services.InitServices(ctx, cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return err
	}
	defer svcs.Close()

	ready := make(chan struct{}, 1)
	svcs.Supervisor.OnReady(func(context.Context, interfaces.Mailbox) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svcs.Supervisor.Run(ctx)
	}()

	select {
	case <-ready:
	case <-time.After(checkConnectTimeout):
		cancel()
		<-done
		return errors.Errorf("mailbox not connected after %s", checkConnectTimeout)
	}

	result := svcs.Poller.RunCycle(ctx)
	cancel()
	<-done

	if !result.Succeeded() {
		return errors.Errorf("fetch cycle failed: %s", result.Error)
	}
	fmt.Printf("Found %d, inserted %d, duplicates %d, failed %d\n",
		result.Found, result.Inserted, result.Duplicates, result.Failed)
	return nil
}

func newLogger(cfg *config.Config) logger.Logger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}
