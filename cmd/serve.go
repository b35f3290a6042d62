package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"

	"featloc/internal/api"
	"featloc/internal/engine"
	"featloc/internal/jobs"
	"featloc/internal/logging"
	"featloc/internal/mcp"
	"featloc/internal/utils"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, logger, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close()

		store, err := jobs.OpenStore(cfg.OutputDir, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if n, err := store.FailInterrupted(); err != nil {
			return err
		} else if n > 0 {
			logger.Warn("marked interrupted jobs as failed", "count", n)
		}

		runner := jobs.NewRunner(store, logger)
		defer runner.Stop()

		app := api.NewApp(api.NewHandler(eng, runner, logger))

		ctx := cmd.Context()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Error("shutdown failed", "error", err)
			}
		}()

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Port
		}
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting HTTP server", "addr", addr, "output", cfg.OutputDir)
		return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent scan jobs recorded by the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := jobs.OpenStore(cfg.OutputDir, newLogger(cfg))
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		list, err := store.List(limit)
		if err != nil {
			return err
		}
		return printJSON(list)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// stdout carries the protocol, so logs go to ~/.featloc/mcp.log
		logger := logging.NewDiscardLogger()
		if dir, err := utils.UserStateDir(); err == nil {
			fileLogger, f, err := logging.NewFileLogger(filepath.Join(dir, "mcp.log"), logging.LevelFromString(cfg.LogLevel))
			if err == nil {
				defer f.Close()
				logger = fileLogger
			}
		}

		eng, err := engine.Build(cfg, logger)
		if err != nil {
			return err
		}
		defer eng.Close()

		return mcp.NewServer(eng, Version, logger).Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}
