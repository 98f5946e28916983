package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oriys/scriptd/internal/auth"
	"github.com/oriys/scriptd/internal/config"
	"github.com/oriys/scriptd/internal/httpapi"
	"github.com/oriys/scriptd/internal/logging"
	"github.com/oriys/scriptd/internal/registry"
	"github.com/oriys/scriptd/internal/runner"
	"github.com/oriys/scriptd/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		scriptsPath string
		stateDir    string
		host        string
		port        int
		envFile     string
		reload      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the script execution control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}

			cfg := config.DefaultConfig()
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("scripts-path") {
				cfg.ScriptsPath = scriptsPath
			}
			if cmd.Flags().Changed("state-dir") {
				cfg.StateDir = stateDir
				cfg.LogsDir = stateDir + "/logs"
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			// --reload is accepted for CLI-surface compatibility; this
			// server has no hot-reload watcher to toggle.
			_ = reload

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&scriptsPath, "scripts-path", "", "Root directory of runnable scripts")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory for the durable run store and logs")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP listen port")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this .env file before startup")
	cmd.Flags().BoolVar(&reload, "reload", false, "Accepted for CLI compatibility; no effect")

	return cmd
}

// runServe validates cfg, wires the daemon's components, and blocks until a
// shutdown signal is received. Misconfiguration exits the process with code 2.
func runServe(cfg *config.Config) error {
	if cfg.ScriptsPath == "" {
		logging.Op().Error("misconfigured: scripts root not set (SCRIPT_SCRIPTS_PATH / --scripts-path)")
		os.Exit(2)
	}
	if _, err := os.Stat(cfg.ScriptsPath); err != nil {
		logging.Op().Error("misconfigured: scripts root does not exist", "path", cfg.ScriptsPath, "error", err)
		os.Exit(2)
	}
	if cfg.JWT.Enabled && cfg.JWT.Secret == "" {
		logging.Op().Error("misconfigured: jwt auth enabled but SCRIPT_JWT_SECRET not set")
		os.Exit(2)
	}

	reg, err := registry.New(cfg.ScriptsPath)
	if err != nil {
		return fmt.Errorf("init script registry: %w", err)
	}

	dbPath := cfg.StateDir + "/runs.db"
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open durable store: %w", err)
	}
	defer st.Close()

	mgr, err := runner.New(st, cfg.LogsDir, cfg.Interpreter, cfg.TerminateTimeout)
	if err != nil {
		return fmt.Errorf("init run manager: %w", err)
	}

	gate := auth.NewGate(cfg.JWT)
	handler := httpapi.New(cfg, reg, mgr, gate)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: handler.NewServeMux(),
	}

	go func() {
		logging.Op().Info("scriptd listening", "addr", addr, "scripts_root", reg.Root(), "jwt_auth", cfg.JWT.Enabled)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Op().Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
