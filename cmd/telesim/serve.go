package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jihwankim/telesim/pkg/api"
	"github.com/jihwankim/telesim/pkg/config"
	"github.com/jihwankim/telesim/pkg/geo"
	"github.com/jihwankim/telesim/pkg/logging"
	"github.com/jihwankim/telesim/pkg/sim"
	"github.com/jihwankim/telesim/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Args:  cobra.NoArgs,
	Short: "Run the simulator and its HTTP control surface",
	Long: `Serve loads the location catalog, connects to MongoDB, ensures the
collection indexes and listens for control requests.

Examples:
  telesim serve
  telesim serve --port 5050
  TELESIM_MONGO_URI=mongodb://db:27017 telesim serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "control port (overrides config)")
	serveCmd.Flags().String("catalog", "", "location catalog path (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, _ := cmd.Flags().GetInt("port")
	catalogPath, _ := cmd.Flags().GetString("catalog")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := logging.Level(cfg.Logging.Level)
	if verbose {
		logLevel = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:  logLevel,
		Format: logging.Format(cfg.Logging.Format),
		Output: os.Stdout,
	})

	catalog, err := geo.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	log.Info("catalog loaded", "path", cfg.Catalog.Path, "locations", catalog.Size())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	st, err := store.NewMongo(connectCtx, cfg.Store)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(closeCtx)
	}()

	if err := st.Ping(connectCtx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := st.EnsureIndexes(connectCtx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	ctrl := sim.NewController(cfg, st, catalog, log)
	server := api.New(ctrl, st, log, cfg.Server.AllowedOrigin)

	err = server.ListenAndServe(ctx, cfg.Server.Port)

	// Drain any active run before the process exits.
	ctrl.Stop(context.Background())

	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
