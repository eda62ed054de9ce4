package commands

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rogermt/forgesyte-sub004/blob"
	"github.com/rogermt/forgesyte-sub004/config"
	"github.com/rogermt/forgesyte-sub004/db"
	"github.com/rogermt/forgesyte-sub004/errors"
	"github.com/rogermt/forgesyte-sub004/health"
	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/logger"
	"github.com/rogermt/forgesyte-sub004/plugin"
	"github.com/rogermt/forgesyte-sub004/plugins/ocr"
	"github.com/rogermt/forgesyte-sub004/plugins/yolotracker"
	"github.com/rogermt/forgesyte-sub004/progress"
	"github.com/rogermt/forgesyte-sub004/server"
	"github.com/rogermt/forgesyte-sub004/worker"
)

// shutdownTimeout bounds how long in-flight HTTP requests may drain.
const shutdownTimeout = 10 * time.Second

var serveConfigPath string

// ServeCmd starts the HTTP server and the job worker in one process.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and job worker",
	Long: `Start the Forgesyte service.

One process runs both the HTTP ingress and the job worker, sharing a
single SQLite handle. Jobs found running at startup are failed before the
worker starts.`,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a forgesyte.toml config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Logger

	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromFile(serveConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := db.Open(cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	blobs, err := blob.NewStore(cfg.DataRoot)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if roots := cfg.PluginRoots(); len(roots) > 0 {
		// External plugin discovery is not implemented yet; built-ins only
		log.Warnw("Ignoring PLUGIN_SEARCH_PATH", "roots", roots)
	}

	registry := plugin.NewRegistry(log)
	loaded := registry.LoadAll(ctx, []plugin.Plugin{
		ocr.New(),
		yolotracker.New(),
	})
	if loaded == 0 {
		return errors.New("no plugins loaded")
	}
	defer registry.UnloadAll(context.Background())

	jobs := job.NewStore(database)
	bus := progress.NewBus(log)
	heartbeat := health.NewHeartbeat()

	w := worker.New(jobs, registry, blobs, bus, heartbeat, cfg.PollInterval(), log)
	if err := w.SweepOrphans(); err != nil {
		return errors.Wrap(err, "failed to sweep orphaned jobs")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	srv := server.New(cfg, jobs, registry, blobs, bus, heartbeat, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Infow("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			cancel()
			wg.Wait()
			return errors.Wrap(err, "HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown did not drain cleanly", "error", err)
	}

	cancel()
	wg.Wait()
	log.Infow("Shutdown complete")
	return nil
}
