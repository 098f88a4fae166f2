// Package app wires the server components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"chatrelay/internal/retention"
	"chatrelay/pkg/auth"
	"chatrelay/pkg/banner"
	"chatrelay/pkg/config"
	"chatrelay/pkg/fanout"
	"chatrelay/pkg/gateway"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/registry"
	"chatrelay/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	st    *store.Store
	reg   *registry.Registry
	disp  *fanout.Dispatcher
	pres  *presence.Tracker
	gw    *gateway.Gateway
	pool  *auth.LimiterPool
	srv   *http.Server
	ready atomic.Bool
}

// New initializes resources that do not require a running context (store,
// runtime keys, core components). Call Run to start serving and block
// until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	rc := &config.RuntimeConfig{SigningKeys: map[string]struct{}{}}
	for _, k := range cfg.Auth.SigningKeys {
		rc.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(rc)

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	a := &App{cfg: cfg, version: version, st: st}
	a.reg = registry.New(st)
	a.pres = presence.New(cfg.Presence.TypingTTL.Duration())
	a.disp = fanout.New(a.reg, cfg.Fanout.QueueCapacity)
	a.gw = gateway.New(st, st, a.disp, a.pres)
	a.pool = auth.NewLimiterPool(cfg.Auth.RateLimit.RPS, cfg.Auth.RateLimit.Burst)
	return a, nil
}

// Run starts the dispatcher, the retention scheduler and the HTTP server,
// and blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.disp.Start()

	cancelRetention, err := retention.Start(ctx, a.cfg.Retention, a.st)
	if err != nil {
		return err
	}
	defer cancelRetention()

	banner.Print(a.cfg, a.version)

	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: a.router()}
	errCh := make(chan error, 1)
	go func() {
		var serveErr error
		if a.cfg.Server.TLS.CertFile != "" && a.cfg.Server.TLS.KeyFile != "" {
			serveErr = a.srv.ListenAndServeTLS(a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		} else {
			serveErr = a.srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()
	a.ready.Store(true)
	logger.Info("server_started", "addr", a.cfg.Addr(), "version", a.version)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown stops intake first, then drains delivery, then closes the
// store.
func (a *App) shutdown() {
	a.ready.Store(false)
	logger.Info("server_stopping")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		_ = a.srv.Shutdown(sctx)
	}
	a.reg.CloseAll()
	a.disp.Close()
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("server_stopped")
}
