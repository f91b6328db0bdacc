package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"groundwork/internal/api"
	"groundwork/internal/bootstrap"
	"groundwork/internal/config"
	"groundwork/internal/database"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the groundwork server",
	Long:  `Start the groundwork server, ensuring the initial admin account exists first.`,
	Example: `groundwork serve --config config.yml
groundwork serve -c /path/to/config.yml --log-level debug
`,
	Run: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if rootCmdPersistentFlags.LogLevel != "" {
		setLogLevel(rootCmdPersistentFlags.LogLevel)
	} else {
		setLogLevel(cfg.LogLevel)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Startup bootstrap must never crash the server, so store errors are
	// swallowed here. The ensure-admin command runs the strict variant.
	if err := bootstrap.EnsureInitialAdmin(ctx, db, cfg.Admin, false); err != nil {
		log.Fatalf("failed to bootstrap admin account: %v", err)
	}

	server, err := api.New(cfg, db)
	if err != nil {
		log.Fatalf("failed to create API server: %v", err)
	}

	go func() {
		log.Info("starting server", "listen", cfg.Listen)
		if err := server.Run(); err != nil {
			log.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal to shut down
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Info("groundwork started successfully")
	<-c
	log.Info("shutting down gracefully...")

	cancel()
	if err := db.Close(); err != nil {
		log.Error("failed to close database", "error", err)
	}
}
