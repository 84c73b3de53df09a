// Command mock-gateway speaks enough of the AzamPay checkout protocol to run
// the API locally: it issues tokens, accepts checkouts, answers status queries
// and calls back with signed webhooks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

type config struct {
	Port          int           `env:"PORT" envDefault:"8081"`
	AppEnv        string        `env:"APP_ENV" envDefault:"development"`
	CallbackURL   string        `env:"CALLBACK_URL" envDefault:"http://app:8080/api/v1/webhooks/azampay"`
	WebhookSecret string        `env:"WEBHOOK_SECRET,required,notEmpty"`
	CallbackDelay time.Duration `env:"CALLBACK_DELAY" envDefault:"2s"`
	// DropRate is the share of callbacks never sent, so reconciliation has
	// something to find.
	DropRate float64 `env:"DROP_RATE" envDefault:"0"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("mock-gateway", "info", cfg.AppEnv, "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := newGateway(cfg, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           gw.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("mock gateway started", "addr", srv.Addr, "callback_url", cfg.CallbackURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	gw.wait()
}
