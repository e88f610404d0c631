package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/emrgen/docview/internal/cache"
	"github.com/emrgen/docview/internal/classify"
	"github.com/emrgen/docview/internal/compress"
	"github.com/emrgen/docview/internal/config"
	"github.com/emrgen/docview/internal/jobs"
	"github.com/emrgen/docview/internal/module"
	"github.com/emrgen/docview/internal/queue"
	"github.com/emrgen/docview/internal/service"
	"github.com/emrgen/docview/internal/store"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gorm.io/gorm"
)

// Server represents the server
type Server struct {
	httpPort string
}

// NewServer creates a new server
func NewServer(httpPort string) *Server {
	return &Server{
		httpPort: httpPort,
	}
}

// Start starts the server
func (s *Server) Start() {
	if err := Start(s.httpPort); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// Backend is the set of core services with the connections they hold.
type Backend struct {
	Services *service.Services
	closers  []func()
}

// Close releases the cache and queue connections.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// NewBackend migrates the store and wires the optional redis cache and kafka
// queue into the core services.
func NewBackend(cfg *config.Config, db *gorm.DB) (*Backend, error) {
	docStore := store.NewGormStore(db)
	if err := docStore.Migrate(); err != nil {
		return nil, err
	}

	backend := &Backend{}
	opts := service.Options{
		Timeout:               cfg.StoreTimeout,
		Location:              cfg.ReportLocation(),
		RollupTTL:             cfg.RollupTTL,
		RequireViewerEmail:    cfg.RequireViewerEmail,
		DashboardRotatesLinks: cfg.DashboardRotatesLinks,
	}

	if cfg.RedisAddr != "" {
		encoder, err := compress.New(cfg.CacheCodec)
		if err != nil {
			return nil, err
		}

		redis := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, encoder)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redis.Ping(ctx); err != nil {
			_ = redis.Close()
			return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.RedisAddr, err)
		}

		opts.Cache = redis
		backend.closers = append(backend.closers, func() { _ = redis.Close() })
		logrus.Infof("caching rollups in redis at %s (%s)", cfg.RedisAddr, cfg.CacheCodec)
	}

	if cfg.KafkaBrokers != "" {
		sessionQueue, err := queue.NewKafkaSessionQueue(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			backend.Close()
			return nil, err
		}

		opts.Queue = sessionQueue
		backend.closers = append(backend.closers, sessionQueue.Close)
		logrus.Infof("publishing session events to kafka topic %s", cfg.KafkaTopic)
	}

	backend.Services = service.New(docStore, opts)

	return backend, nil
}

// Start starts the http server and the session sweep
func Start(httpPort string) error {
	httpPort = ":" + httpPort

	cnf := config.LoadConfig()
	rdb := config.GetDb(cnf)

	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	backend, err := NewBackend(cnf, rdb)
	if err != nil {
		return err
	}
	defer backend.Close()

	if cnf.CapabilitySecret == "" {
		logrus.Warn("CAPABILITY_SECRET is not set, admin endpoints are unreachable")
	}
	issuer := module.NewCapabilityIssuer(cnf.CapabilitySecret, cnf.CapabilityTTL)

	handler := NewHandler(backend.Services, classify.NewUserAgentClassifier(), cnf.ReportLocation())

	var executor *jobs.TaskExecutor
	if cnf.SweepEnabled() {
		sweep := jobs.NewSessionSweepTask(backend.Services.Sessions, cnf.SweepSchedule, cnf.SweepInactivity, cnf.SweepBatch)
		executor = jobs.NewTaskExecutor(sweep)
		if err := executor.Run(); err != nil {
			return err
		}
		logrus.Infof("sweeping sessions idle for %v on %q", cnf.SweepInactivity, cnf.SweepSchedule)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // All origins are allowed
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	restServer := &http.Server{
		Addr:              httpPort,
		Handler:           c.Handler(NewRouter(handler, issuer)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// make sure to wait for the server to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting http server on: ", httpPort)
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting http server: %v", err)
			}
		}
		logrus.Infof("http server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	if executor != nil {
		executor.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := restServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping http server: %v", err)
	}

	wg.Wait()

	return nil
}
