package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devrev/securegpx/internal/admission"
	"github.com/devrev/securegpx/internal/chain"
	"github.com/devrev/securegpx/internal/codec"
	"github.com/devrev/securegpx/internal/config"
	"github.com/devrev/securegpx/internal/handler"
	"github.com/devrev/securegpx/internal/logger"
	"github.com/devrev/securegpx/internal/metrics"
	"github.com/devrev/securegpx/internal/queue"
	"github.com/devrev/securegpx/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// configEnv names the config file when --config is not given
const configEnv = "SECUREGPX_CONFIG"

// app wires one store behind its own queue
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	queue    *queue.Queue
	handler  *handler.Handler
}

func loadConfig(path string) (*config.Config, error) {
	// a missing .env is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func newApp(cfg *config.Config, name string) (*app, error) {
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}

	policy, err := admission.New(cfg.AdmissionPolicy())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry, name)

	engine := chain.NewEngine(cfg.ChainConfig(), m, log)
	s := store.NewStore(engine, codec.New(cfg.CodecConfig(), log), m, log)
	q := queue.NewQueue(&queue.Config{
		Name:      cfg.Queue.Name,
		QueueSize: cfg.Queue.Size,
		Logger:    log,
		Metrics:   m,
	})

	return &app{
		cfg:      cfg,
		logger:   log,
		registry: registry,
		metrics:  m,
		queue:    q,
		handler: handler.New(handler.Config{
			Store:   s,
			Queue:   q,
			Policy:  policy,
			Metrics: m,
			Logger:  log,
		}),
	}, nil
}

// load reads path into the store and waits until it is decoded
func (a *app) load(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := a.handler.Load(f); err != nil {
		return err
	}
	if err := a.handler.Flush(ctx); err != nil {
		return err
	}
	if !a.handler.Store().Initialized() {
		return fmt.Errorf("%s is not a readable gpx document", path)
	}
	if a.handler.Store().Name() == "" {
		a.handler.Store().SetName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return nil
}

// save writes the store to path and waits for the write
func (a *app) save(ctx context.Context, path string) error {
	var saveErr error
	a.handler.SetDestination(func() (io.WriteCloser, error) {
		f, err := os.Create(path)
		if err != nil {
			saveErr = err
			return nil, err
		}
		return f, nil
	})
	saved := false
	a.handler.OnSave(func(*store.Store) { saved = true })
	if err := a.handler.Save(); err != nil {
		return err
	}
	if err := a.handler.Flush(ctx); err != nil {
		return err
	}
	if !saved {
		if saveErr != nil {
			return fmt.Errorf("failed to save %s: %w", path, saveErr)
		}
		return fmt.Errorf("failed to save %s", path)
	}
	return nil
}

// validate reports the chain validity through the queue
func (a *app) validate(ctx context.Context) (bool, error) {
	var valid bool
	if err := a.handler.RequestValidation(func(v bool) { valid = v }); err != nil {
		return false, err
	}
	if err := a.handler.Flush(ctx); err != nil {
		return false, err
	}
	return valid, nil
}

func (a *app) close() {
	if err := a.queue.Stop(a.cfg.Queue.StopTimeout); err != nil {
		a.logger.Warn("Queue did not stop cleanly", zap.Error(err))
	}
	_ = a.logger.Sync()
}
