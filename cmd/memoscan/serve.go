package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mf2hd-design/memoscan2/internal/app"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.NewStdoutLogger("memoscan")

		cfg := config.FromEnv(config.DefaultConfig())
		if serveAddr != "" {
			cfg.Server.ListenAddr = serveAddr
		}

		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		httpSrv := application.Server.HTTPServer()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", logging.Field{Key: "addr", Value: cfg.Server.ListenAddr})
			errCh <- httpSrv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", logging.Field{Key: "signal", Value: sig.String()})
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides MEMOSCAN_LISTEN_ADDR)")
}
