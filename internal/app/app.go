// Package app assembles repositories, vendor sources and services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/taskpulse/internal/config"
	"github.com/and161185/taskpulse/internal/crypto"
	"github.com/and161185/taskpulse/internal/events"
	"github.com/and161185/taskpulse/internal/limiter"
	"github.com/and161185/taskpulse/internal/metrics"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository/postgres"
	"github.com/and161185/taskpulse/internal/service"
	"github.com/and161185/taskpulse/internal/source"
	"github.com/and161185/taskpulse/internal/source/gcal"
	"github.com/and161185/taskpulse/internal/source/notion"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App holds the wired services and the resources they own.
type App struct {
	Sessions    *service.SessionServiceImpl
	Credentials *service.CredentialServiceImpl
	Descriptors *service.DescriptorServiceImpl
	Sync        *service.SyncServiceImpl
	KPIs        *service.KPIServiceImpl
	Registry    *prometheus.Registry

	db  *postgres.DB
	nc  *nats.Conn
	log *zap.Logger
}

// NewLogger builds a production (json) or development (console) logger at the configured level.
func NewLogger(c config.LogConfig) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// MasterKey resolves the credential master key from a hex key or a passphrase.
func MasterKey(c config.CryptoConfig) ([]byte, error) {
	if c.MasterKey != "" {
		return crypto.MasterKeyFromHex(c.MasterKey)
	}
	if c.Passphrase == "" {
		return nil, errors.New("no master key configured")
	}
	return crypto.MasterKeyFromPassphrase([]byte(c.Passphrase), []byte(c.Salt))
}

// Registry maps the supported source types to their openers.
func Registry(c config.GoogleConfig) *source.Registry {
	reg := source.NewRegistry()
	reg.Register(model.SourceNotion, notion.Open)
	reg.Register(model.SourceGoogleCalendar, gcal.Opener(c.ClientID, c.ClientSecret))
	return reg
}

// New connects to PostgreSQL (and NATS when configured) and wires every service.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	key, err := MasterKey(cfg.Crypto)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, err
	}

	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	a := &App{db: db, log: log}

	var pub events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.nc = nc
		pub = events.NewNATS(nc, cfg.NATS.SubjectPrefix)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	credRepo := postgres.NewCredentialRepo(db)
	descRepo := postgres.NewDescriptorRepo(db)
	taskRepo := postgres.NewTaskRepo(db)

	a.Sessions = service.NewSessionService([]byte(cfg.Auth.JWTKey), cfg.Auth.AccessTTL)
	a.Credentials = service.NewCredentialService(credRepo, descRepo, sealer)
	a.Descriptors = service.NewDescriptorService(descRepo, a.Credentials)
	a.Sync = service.NewSyncService(service.SyncDeps{
		Credentials: a.Credentials,
		Descriptors: descRepo,
		Tasks:       taskRepo,
		Directory:   postgres.NewDirectoryRepo(db),
		Sources:     Registry(cfg.Google),
		Trigger:     limiter.NewPG(db.Pool, cfg.Sync.TriggerWindow, cfg.Sync.TriggerMax),
		Throttle:    limiter.NewMemory(cfg.Sync.VendorRPS, 1),
		Events:      pub,
		Metrics:     m,
		Logger:      log.Named("sync"),
		PageRetries: cfg.Sync.PageRetries,
		RetryBase:   cfg.Sync.RetryBase,
		MaxBatch:    cfg.Database.MaxBatch,
	})
	a.KPIs = service.NewKPIService(taskRepo, descRepo, postgres.NewSnapshotRepo(db), pub, m, log.Named("kpi"))
	return a, nil
}

// Ping checks the database.
func (a *App) Ping(ctx context.Context) error { return a.db.Ping(ctx) }

// Close drains NATS and closes the pool.
func (a *App) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn("nats drain", zap.Error(err))
		}
	}
	a.db.Close()
}
