package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/cleanshop/internal/config"
	"github.com/Skotchmaster/cleanshop/internal/events"
	"github.com/Skotchmaster/cleanshop/internal/httpserver"
	"github.com/Skotchmaster/cleanshop/internal/models"
	"github.com/Skotchmaster/cleanshop/internal/mykafka"
	"github.com/Skotchmaster/cleanshop/internal/rabbit"
	"github.com/Skotchmaster/cleanshop/internal/repo"
	"github.com/Skotchmaster/cleanshop/internal/search"
	"github.com/Skotchmaster/cleanshop/internal/service"
	pkgdb "github.com/Skotchmaster/cleanshop/pkg/db"
	"github.com/Skotchmaster/cleanshop/pkg/hash"
	"github.com/Skotchmaster/cleanshop/pkg/logging"
	loggingmw "github.com/Skotchmaster/cleanshop/pkg/middleware/logging"
	"github.com/Skotchmaster/cleanshop/pkg/middleware/ratelimit"
	"github.com/Skotchmaster/cleanshop/pkg/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(db.WithContext(ctx)); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	r := repo.New(db)
	seeded, err := r.SeedRoles(ctx, models.Roles)
	cancel()
	if err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	logger.Info("roles_seeded", "created", seeded)

	issuer, err := tokens.NewIssuer([]byte(cfg.JWT.Key), cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.TTL())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		log.Fatalf("events: %v", err)
	}

	var index *search.Index
	if cfg.Elastic.URL != "" {
		esCtx, esCancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := search.NewClient(esCtx, cfg.Elastic.URL, cfg.Elastic.User, cfg.Elastic.Password)
		esCancel()
		if err != nil {
			logger.Warn("search_disabled", "error", err)
		} else {
			index = &search.Index{Client: client, Name: cfg.Elastic.Index}
		}
	}

	rdb := ratelimit.NewClient(context.Background(), cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword)
	limiter := ratelimit.TokenBucket(ratelimit.Config{
		Capacity:     cfg.RateLimit.Capacity,
		RefillPerSec: cfg.RateLimit.RefillPerSec,
		Prefix:       "rl:" + cfg.ServiceName,
		TTL:          10 * time.Minute,
	}, rdb)

	authSvc := &service.AuthService{
		UOW:    r,
		Hasher: hash.Bcrypt{},
		Tokens: issuer,
		Events: publisher,
	}
	catalogSvc := &service.CatalogService{Repo: r, Index: index, Events: publisher}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:    &httpserver.AuthHTTP{Svc: authSvc, SecureCookies: cfg.SecureCookies},
		CatalogHandler: &httpserver.CatalogHTTP{Svc: catalogSvc},
		Tokens:         issuer,
		DB:             db,
		RateLimit:      limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	closers := []closer{{"events", publisher.Close}}
	if rdb != nil {
		closers = append(closers, closer{"redis", rdb.Close})
	}
	closers = append(closers, closer{"db", func() error { return pkgdb.Close(db) }})
	closeAll(logger, closers...)

	logger.Info("stopped")
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.EventsBroker {
	case "kafka":
		p, err := mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "rabbitmq":
		p, err := rabbit.Dial(cfg.RabbitURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return events.Nop{}, nil
	}
}

type closer struct {
	name  string
	close func() error
}

// closeAll closes every resource in order and logs the ones that fail.
func closeAll(l *slog.Logger, closers ...closer) {
	for _, c := range closers {
		if err := c.close(); err != nil {
			l.Warn("close_failed", "resource", c.name, "error", err)
		}
	}
}
