package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mf2hd-design/memoscan2/internal/app"
	"github.com/mf2hd-design/memoscan2/internal/config"
	"github.com/mf2hd-design/memoscan2/internal/logging"
	"github.com/mf2hd-design/memoscan2/internal/session"
)

var scanMode string

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Run a single scan and print its events as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Pipeline logs go to stderr so stdout stays clean JSON lines.
		logger := logging.NewWriterLogger("memoscan", os.Stderr)

		cfg := config.FromEnv(config.DefaultConfig())
		application, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		sess, err := application.Coordinator.StartScan(args[0], scanMode, "cli")
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		failed := false
		for ev := range sess.Events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			if ev.Type == session.EventError {
				failed = true
			}
		}

		if failed || sess.Status() != session.StatusCompleted {
			return fmt.Errorf("scan finished with status %s", sess.Status())
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanMode, "mode", "diagnosis", "analysis mode: diagnosis or discovery")
}
