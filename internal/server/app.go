// Package server initializes and runs the storage server. It opens the
// metadata store, applies migrations, connects the blob store, and runs the
// REST API, the gRPC health service and the maintenance scheduler until the
// process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/dbx"
	"github.com/dmitrijs2005/lmsstorage/internal/logging"
	"github.com/dmitrijs2005/lmsstorage/internal/netx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/blobstore"
	"github.com/dmitrijs2005/lmsstorage/internal/server/config"
	"github.com/dmitrijs2005/lmsstorage/internal/server/httpapi"
	"github.com/dmitrijs2005/lmsstorage/internal/server/maintenance"
	"github.com/dmitrijs2005/lmsstorage/internal/server/metrics"
	"github.com/dmitrijs2005/lmsstorage/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lmsstorage/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/lmsstorage/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	startupTimeout = 30 * time.Second
	probeInterval  = 15 * time.Second
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	metrics *metrics.Metrics
	storage *services.StorageService
	cleaner *maintenance.Cleaner
	proxies []netip.Prefix
}

// NewApp connects every backing service and builds the storage service.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		UsePathStyle: c.S3UsePathStyle,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "metadata"),
	)
	mx := metrics.New(registry)

	svc := services.NewStorageService(db, dbx.NewSQLTransactor(db, nil), rm, blobs,
		services.OptionsFromConfig(c), logger, mx)

	if err := svc.CreateBucket(ctx, c.DefaultBucket, false); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("default bucket %q: %w", c.DefaultBucket, err)
	}

	proxies, err := netx.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cleaner := maintenance.NewCleaner(rm.AccessLogs(db), c.AccessLogRetention, logger, mx)

	return &App{config: c, logger: logger, db: db, metrics: mx, storage: svc, cleaner: cleaner, proxies: proxies}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(httpapi.Options{
		Address:        app.config.HTTPAddr,
		SecretKey:      []byte(app.config.SecretKey),
		MaxUploadSize:  app.config.MaxUploadSize,
		MetricsPath:    app.config.MetricsPath,
		TrustedProxies: app.proxies,
	}, app.storage, app.metrics, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCHealthAddr, app.logger, app.db.PingContext, probeInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startCleaner(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.cleaner.Run(ctx, app.config.CleanupSchedule); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or one of the servers fails, then waits
// for all of them to stop and closes the database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for _, start := range []func(context.Context, context.CancelFunc){
		app.startHTTPServer,
		app.startGRPCServer,
		app.startCleaner,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close error", "error", err)
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
