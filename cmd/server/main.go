package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/logging"
	"github.com/yourorg/payment-gateway/internal/tracing"
	"github.com/yourorg/payment-gateway/internal/validation"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	addr    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "payment-gateway",
		Short:         "Card payment gateway in front of an acquiring bank",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default)",
		RunE:  runServe,
	})
	root.AddCommand(newReportCmd())
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("wire gateway: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("shutdown: close resources", "err", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newEngine(a.orchestrator, validation.NewValidator(), a.circuitState, log, cfg.Tracing.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("payment gateway listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown: http server", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("shutdown: tracing", "err", err)
	}
	log.Info("payment gateway stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
