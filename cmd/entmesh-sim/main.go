package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/entmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/entmesh-go/internal/infra/confloader"
	"github.com/yndnr/entmesh-go/internal/infra/shutdown"
	"github.com/yndnr/entmesh-go/internal/server/adminhttp"
	"github.com/yndnr/entmesh-go/internal/server/config"
	"github.com/yndnr/entmesh-go/internal/sim"
	"github.com/yndnr/entmesh-go/internal/storage"
	"github.com/yndnr/entmesh-go/internal/storage/badgerstore"
	"github.com/yndnr/entmesh-go/internal/storage/memory"
	"github.com/yndnr/entmesh-go/internal/telemetry/logger"
	"github.com/yndnr/entmesh-go/internal/telemetry/metric"
	"github.com/yndnr/entmesh-go/pkg/seal"
)

// shutdownTimeout bounds the admin endpoint's graceful drain.
const shutdownTimeout = 10 * time.Second

// sealSalt namespaces the key derived from security.seal_secret.
var sealSalt = []byte("entmesh-registry")

func main() {
	app := &cli.App{
		Name:  "entmesh-sim",
		Usage: "simulated clustered entity platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "boot the platform and run the scripted scenario",
				Action: runScenario,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the configuration, then exit",
				Action: checkConfig,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Println("entmesh-sim " + buildinfo.String())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runScenario(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting entmesh-sim",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", config.Sanitize(cfg))

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := metric.NewRegistry()
	runner := sim.NewRunner(cfg.Sim,
		sim.WithLogger(log),
		sim.WithMetrics(metrics),
		sim.WithRegistry(registry))

	handler := shutdown.NewHandler(shutdownTimeout)
	handler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing storage registry")
		return registry.Close()
	})

	// Hot-reload the log level when the config file changes.
	if path := c.String("config"); path != "" {
		watcher, err := confloader.NewWatcher()
		if err != nil {
			return fmt.Errorf("init config watcher: %w", err)
		}
		watcher.OnChange(func(string) {
			fresh, err := loadConfig(path)
			if err != nil {
				log.Warn("ignoring invalid config change", "error", err)
				return
			}
			logger.SetLevel(fresh.Log.Level)
			log.Info("log level applied from config change", "level", fresh.Log.Level)
		})
		if err := watcher.Watch(path); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		watcher.StartAsync()
		handler.OnShutdown(func(ctx context.Context) error {
			return watcher.Stop()
		})
	}

	if cfg.Admin.Enabled {
		admin := adminhttp.New(cfg.Admin.Addr, adminhttp.NewRouter(&adminhttp.RouterConfig{
			Metrics: metrics,
			Status:  runner,
			Logger:  log,
		}))
		handler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down admin endpoint")
			return admin.Shutdown(ctx)
		})
		go func() {
			log.Info("admin endpoint listening", "addr", cfg.Admin.Addr)
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("admin endpoint failed", "error", err)
			}
		}()
	}

	// Ctrl-C cancels the scenario; the run then falls through to the
	// same shutdown path as a natural finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := runner.Run(ctx)
	handler.Trigger()
	if err := handler.Wait(); err != nil {
		log.Error("shutdown finished with error", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("scenario: %w", runErr)
	}

	fmt.Printf("invocations=%d failures=%d reconnects=%d elapsed=%s\n",
		report.Invocations, report.Failures, report.Reconnects, report.Elapsed.Round(time.Millisecond))
	for name, total := range report.Totals {
		line := fmt.Sprintf("%s total=%d", name, total)
		if replica, ok := report.ReplicaTotals[name]; ok {
			line += fmt.Sprintf(" replica=%d", replica)
		}
		fmt.Println(line)
	}
	return nil
}

func checkConfig(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	fmt.Printf("configuration ok: backend=%s clients=%d entities=%d run_for=%s\n",
		cfg.Storage.Backend, cfg.Sim.Clients, cfg.Sim.Entities, cfg.Sim.RunFor)
	return nil
}

// loadConfig merges defaults, the optional config file, and the
// environment, then validates the result.
func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Default()

	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("verify config: %w", err)
	}
	return cfg, nil
}

// buildRegistry constructs the entity registry named by the storage
// section, wiring at-rest sealing when a secret is configured.
func buildRegistry(cfg *config.ServerConfig) (storage.Registry, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.New(), nil
	case "badger":
		var opts []badgerstore.Option
		if cfg.Storage.InMemory {
			opts = append(opts, badgerstore.WithInMemory())
		}
		if cfg.Security.SealSecret != "" {
			cipher, err := buildCipher(&cfg.Security)
			if err != nil {
				return nil, err
			}
			opts = append(opts, badgerstore.WithCipher(cipher))
		}
		return badgerstore.Open(cfg.Storage.DataDir, opts...)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildCipher(sec *config.SecuritySection) (seal.Cipher, error) {
	key, err := seal.DeriveKey([]byte(sec.SealSecret), sealSalt)
	if err != nil {
		return nil, err
	}
	if sec.SealAlgorithm != "" {
		return seal.NewWithAlgorithm(key, seal.Algorithm(sec.SealAlgorithm))
	}
	return seal.New(key)
}
