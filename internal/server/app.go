// Package server wires the relay together: logging, storage, the upstream
// clients, the core services and the HTTP and gRPC servers.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/logging"
	"github.com/dmitrijs2005/signerrelay/internal/server/archive"
	"github.com/dmitrijs2005/signerrelay/internal/server/authority"
	"github.com/dmitrijs2005/signerrelay/internal/server/config"
	"github.com/dmitrijs2005/signerrelay/internal/server/idregistry"
	"github.com/dmitrijs2005/signerrelay/internal/server/metrics"
	"github.com/dmitrijs2005/signerrelay/internal/server/nonces"
	"github.com/dmitrijs2005/signerrelay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/signerrelay/internal/server/rest"
	"github.com/dmitrijs2005/signerrelay/internal/server/services"
	"github.com/dmitrijs2005/signerrelay/internal/server/sponsor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	gs "github.com/dmitrijs2005/signerrelay/internal/server/grpc"
)

const nonceReapInterval = time.Minute

type App struct {
	config      *config.Config
	logger      logging.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	memoryNonce *nonces.MemoryStore
	signers     *services.SignerService
	signIn      *services.SignInService
	gate        *services.AuthorizationGate
	casts       *services.CastService
	closers     []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	a := &App{config: c}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()

	logger, closer, err := newLogger(c)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	a.logger = logger
	a.addCloser(closer)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	db, rm, err := a.initStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	ns, err := a.initNonces(ctx)
	if err != nil {
		return nil, fmt.Errorf("nonce store init error: %w", err)
	}

	sp, err := sponsor.FromMnemonic(c.AppFID, c.AppMnemonic)
	if err != nil {
		return nil, fmt.Errorf("sponsor init error: %w", err)
	}
	logger.Info(ctx, "sponsor identity loaded", "fid", sp.FID(), "address", sp.Address().Hex())

	ar, err := a.initArchive(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive init error: %w", err)
	}

	hc := &http.Client{Timeout: c.UpstreamTimeout}
	ac := authority.NewClient(c.AuthorityURL, c.AuthorityJWT, hc)
	ir := idregistry.NewClient(c.HubURL, hc)

	a.gate = services.NewAuthorizationGate(db, rm, ac, c, logger)
	a.signers = services.NewSignerService(db, rm, ac, sp, a.gate, c, logger, a.metrics)
	a.signIn = services.NewSignInService(ns, ir, c, logger, a.metrics)
	a.casts = services.NewCastService(db, rm, ac, a.gate, ar, c, logger, a.metrics)

	return a, nil
}

func newLogger(c *config.Config) (logging.Logger, io.Closer, error) {
	switch c.LogBackend {
	case "zap":
		return logging.NewZapLogger(logging.ZapOptions{
			Level:      c.LogLevel,
			File:       c.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		})
	default:
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, nil, err
		}
		return logging.NewJSONSlogLogger(os.Stdout, level), nil, nil
	}
}

func (app *App) initStorage(ctx context.Context) (*sql.DB, repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, signer cache and cast ledger are kept in memory")
		return nil, repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	app.addCloser(db)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, nil, err
	}
	return db, rm, nil
}

func (app *App) initNonces(ctx context.Context) (nonces.Store, error) {
	if app.config.RedisAddr == "" {
		app.memoryNonce = nonces.NewMemoryStore(app.logger)
		return app.memoryNonce, nil
	}

	rs, err := nonces.NewRedisStore(ctx, nonces.RedisConfig{Addr: app.config.RedisAddr, Password: app.config.RedisPassword})
	if err != nil {
		return nil, err
	}
	app.addCloser(rs)
	return rs, nil
}

func (app *App) initArchive(ctx context.Context) (archive.Archiver, error) {
	if app.config.S3Bucket == "" {
		return archive.Nop{}, nil
	}
	return archive.NewS3Archiver(ctx, archive.S3Config{
		Region:       app.config.S3Region,
		User:         app.config.S3RootUser,
		Password:     app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
}

func (app *App) addCloser(c io.Closer) {
	if c != nil {
		app.closers = append(app.closers, c)
	}
}

// Close releases everything NewApp opened, most recent first.
func (app *App) Close() error {
	var err error
	for i := len(app.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, app.closers[i].Close())
	}
	app.closers = nil
	return err
}

// HTTPHandler returns the HTTP API without starting a listener.
func (app *App) HTTPHandler() http.Handler {
	return app.httpServer().Handler()
}

func (app *App) httpServer() *rest.HTTPServer {
	return rest.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, rest.Services{
		Signers:  app.signers,
		SignIn:   app.signIn,
		Resolver: app.gate,
		Casts:    app.casts,
	}, app.metrics, app.registry)
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer().Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is canceled, a signal arrives or a server fails,
// then releases resources.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	if app.memoryNonce != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.memoryNonce.RunReaper(ctx, nonceReapInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	return app.Close()
}
