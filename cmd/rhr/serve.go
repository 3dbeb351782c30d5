package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/rhr-session/internal/config"
	"github.com/jrsteele09/rhr-session/server"
	tenantrepofakes "github.com/jrsteele09/rhr-session/tenants/repofakes"
	refreshrepofake "github.com/jrsteele09/rhr-session/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/rhr-session/users/repofake"
	"github.com/rs/zerolog/log"
)

const revocationSweepInterval = 10 * time.Minute

// serveCmd runs the local identity service with in-memory repositories
// until the context is cancelled.
func serveCmd(ctx context.Context, cfg config.Config, _ []string, _ io.Writer) error {
	displayAppname(cfg.GetAppName())

	repos := server.Repos{
		Users:         fakeuserrepo.NewFakeUserRepo(),
		Tenants:       tenantrepofakes.NewFakeTenantRepo(),
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
	}
	handler, err := server.New(cfg, repos)
	if err != nil {
		return err
	}
	go handler.RunRevocationSweeper(ctx, revocationSweepInterval)

	srv := &http.Server{Addr: cfg.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(srv) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
