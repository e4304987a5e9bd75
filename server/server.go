package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/customeros/mailpulse/api"
	"github.com/customeros/mailpulse/api/handlers"
	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/internal/cron"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/repository"
	"github.com/customeros/mailpulse/internal/tracing"
	"github.com/customeros/mailpulse/services"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cron         *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(ctx, cfg, appLogger, repos)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cron:         cron.NewCronManager(cfg.CronConfig, appLogger, repos.MailRecordRepository),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Initialize() error {
	apiHandlers := handlers.InitHandlers(
		s.repositories.MailRecordRepository,
		s.services.Mailer,
		s.services.Poller,
		s.services.Worker,
		s.log,
	)
	api.RegisterRoutes(s.router, apiHandlers, s.config.AppConfig)

	return s.cron.Start()
}

func (s *Server) reportPanic(name string, r interface{}) {
	span := opentracing.GlobalTracer().StartSpan(
		fmt.Sprintf("panic.%s", name),
	)
	defer span.Finish()

	ext.Error.Set(span, true)
	span.LogKV(
		"event", "panic",
		"process", name,
		"error", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)

	s.log.Errorf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
}

// goroutine runs fn in the group. A panic is reported and turned into an
// error so the remaining components shut down with it.
func (s *Server) goroutine(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.reportPanic(name, r)
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn()
	})
}

func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Initialize(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	s.log.Info("Starting IMAP supervisor...")
	s.goroutine(g, "imap_supervisor", func() error { return s.services.Supervisor.Run(gctx) })
	s.goroutine(g, "imap_poller", func() error { return s.services.Poller.Run(gctx) })
	s.goroutine(g, "analysis_worker", func() error { return s.services.Worker.Run(gctx) })

	s.goroutine(g, "http_server", func() error {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	s.goroutine(g, "shutdown", func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	s.log.Info("MailPulse is now running. Press Ctrl+C to exit.")
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.cron.Stop()

	var shutdownErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("❌ HTTP server shutdown error: %v", err)
		shutdownErr = err
	} else {
		s.log.Info("✅ HTTP server shut down successfully")
	}

	if err := s.services.Close(); err != nil {
		s.log.Warnf("Classifier close error: %v", err)
	}
	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()
	return shutdownErr
}
