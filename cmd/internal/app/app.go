// Package app wires the wicket server runtime: config, logging, the
// database pool, the auth HTTP surface, and the background grant sweeper.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wicket/cmd/account"
	authapi "wicket/cmd/internal/auth/api"
	"wicket/cmd/internal/auth/reset"
	"wicket/cmd/internal/auth/session"
	"wicket/cmd/security/jwt"
	"wicket/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the wicket server runtime.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool

	auth    *authapi.Handler
	sweeper *Sweeper
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: WICKET_DATABASE_URL is required")
	}

	pool, err := NewDBPool(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// wire assembles the service graph on top of an open pool.
func wire(cfg Config, log Logger, pool *pgxpool.Pool) (*App, error) {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	codec, err := jwt.NewCodec(sessCfg.CodecConfig())
	if err != nil {
		return nil, err
	}

	accounts, err := account.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	grants := session.NewPostgresStore(pool)

	resetStore, err := reset.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	resets, err := reset.NewService(resetStore, reset.WithTTL(sessCfg.ResetTokenTTL))
	if err != nil {
		return nil, err
	}

	svc, err := session.NewService(sessCfg, accounts, password.NewHasher(pwCfg), codec, grants, resets, session.WithLogger(log))
	if err != nil {
		return nil, err
	}

	metrics, err := authapi.NewMetrics(nil)
	if err != nil {
		return nil, err
	}
	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc, accounts, authapi.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	sweeper := NewSweeper(log, cfg.SweepInterval, map[string]ExpiredDeleter{
		"session_grants": grants,
		"reset_grants":   resetStore,
	})

	return &App{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		auth:    auth,
		sweeper: sweeper,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.auth)

	handler := WithRequestLogging(WithSecurityHeaders(mux), a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.pool != nil {
		a.pool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
