// eobridge publishes EnOcean sensor values, deposited as small text files
// by a receiver process, as named points on the point server and on the
// configured sinks (MQTT, InfluxDB, Redis, SQLite history).
//
// Channels are listed in the control file (default
// /var/tmp/dpride/eofilter.txt). A channel is scanned when one of its
// source files changes, when its index arrives on the notify topic, or
// when the process receives SIGUSR1. SIGHUP reloads the control file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-enocean/internal/pointserver"
	"github.com/nerrad567/gray-logic-enocean/internal/sink"
	"github.com/nerrad567/gray-logic-enocean/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often history older than the retention window is deleted.
const pruneInterval = time.Hour

// options holds the command line flags. Flags that were set override the
// loaded configuration.
type options struct {
	configPath string
	debug      bool
	logSamples bool
	domain     string
	port       int
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitCode(err))
	}
}

// newRootCmd builds the eobridge command. runFn receives the loaded
// configuration with flag overrides applied.
func newRootCmd(runFn func(context.Context, *config.Config) error) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "eobridge",
		Short: "Publish EnOcean file-based sensor values as named points",
		Long: `eobridge reads the channel registry from the control file, watches ` +
			`each channel's value files and publishes every new value to the ` +
			`point server and the configured sinks.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runFn(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", configPathFromEnv(), "configuration file")

	flags := cmd.Flags()
	flags.BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")
	flags.BoolVarP(&opts.logSamples, "log-samples", "L", false, "log every published sample")
	flags.StringVarP(&opts.domain, "domain", "d", "", "point name prefix")
	flags.IntVarP(&opts.port, "port", "p", 0, "point server port")

	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

// configPathFromEnv returns EOBRIDGE_CONFIG if set, otherwise the default.
func configPathFromEnv() string {
	if path := os.Getenv("EOBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the configuration file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Bridge.Debug = opts.debug
	}
	if flags.Changed("log-samples") {
		cfg.Bridge.LogSamples = opts.logSamples
	}
	if flags.Changed("domain") {
		cfg.Bridge.Domain = opts.domain
	}
	if flags.Changed("port") {
		cfg.API.Port = opts.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Loaded configuration with flag overrides applied
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	if cfg.Bridge.Debug {
		log.SetLevel("debug")
	}
	log.Info("starting EnOcean bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"bridge_id", cfg.Bridge.ID,
	)

	var history *sink.HistorySink
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())

		history = sink.NewHistorySink(db.DB)
		if startErr := history.Start(); startErr != nil {
			return fmt.Errorf("starting history: %w", startErr)
		}
		defer history.Stop()
	}

	var bridge *enocean.Bridge
	deps := pointserver.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Version: version,
		Status: func() any {
			return map[string]any{
				"id":       cfg.Bridge.ID,
				"channels": bridge.Registry().Len(),
				"stats":    bridge.Stats(),
			}
		},
	}
	if history != nil {
		deps.History = func(ctx context.Context, point string, limit int) (any, error) {
			return history.Recent(ctx, point, limit)
		}
		deps.Channels = func(ctx context.Context) (any, error) {
			return history.Channels(ctx)
		}
	}

	server, err := pointserver.New(deps)
	if err != nil {
		return fmt.Errorf("creating point server: %w", err)
	}

	// Optional infrastructure. A sink that cannot connect is logged and
	// left out; the bridge still serves points locally.
	publishers := enocean.FanOut{server}
	if history != nil {
		publishers = append(publishers, history)
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it", "error", err)
			mqttClient = nil
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mqttClient.SetLogger(log)
			mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
			mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
			publishers = append(publishers, sink.NewMQTTSink(mqttClient, byte(cfg.MQTT.QoS)))
		}
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "error", err)
			influxClient = nil
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
			publishers = append(publishers, sink.NewInfluxSink(influxClient))
		}
	}

	if cfg.Redis.Enabled {
		redisClient, redisErr := redis.Connect(ctx, cfg.Redis)
		if redisErr != nil {
			log.Warn("Redis unavailable, continuing without it", "error", redisErr)
		} else {
			defer func() {
				log.Info("closing Redis connection")
				if closeErr := redisClient.Close(); closeErr != nil {
					log.Error("error closing Redis", "error", closeErr)
				}
			}()
			log.Info("Redis connected", "addr", cfg.Redis.Addr)
			publishers = append(publishers, sink.NewRedisSink(redisClient))
		}
	}

	bridgeOpts := enocean.BridgeOptions{
		Config:    cfg.Bridge,
		Publisher: publishers,
		Scheduler: server,
		Points:    server,
		Logger:    log,
		Version:   version,
	}
	if mqttClient != nil {
		bridgeOpts.Health = mqttClient
	}
	if history != nil {
		bridgeOpts.Channels = history
	}
	if influxClient != nil {
		bridgeID := cfg.Bridge.ID
		bridgeOpts.OnCycle = func(res enocean.CycleResult) {
			influxClient.WriteCycleStats(bridgeID, res.Channels, res.Samples, res.ReadMisses+res.PublishErrors)
		}
	}

	bridge, err = enocean.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// File notifications need the source index before the first load.
	var fileNotifier *enocean.FileNotifier
	if cfg.Notify.WatchSources {
		fileNotifier, err = enocean.NewFileNotifier(bridge.Events(), cfg.Bridge.DataDir, log)
		if err != nil {
			log.Warn("source file watching unavailable", "error", err)
			fileNotifier = nil
		} else {
			bridge.OnReload(fileNotifier.SetRegistry)
		}
	}

	if err := bridge.Start(ctx); err != nil {
		server.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("starting bridge: %w", err)
	}

	if mqttClient != nil && cfg.Notify.MQTT {
		notifier := enocean.NewMQTTNotifier(bridge.Events(), cfg.Notify.MQTTTopic, log)
		if subErr := notifier.Start(mqttClient); subErr != nil {
			log.Warn("MQTT notifications unavailable", "topic", notifier.Topic(), "error", subErr)
		}
	}

	if history != nil && cfg.Database.RetentionDays > 0 {
		retention := cfg.Database.RetentionDays
		if err := server.RegisterPeriodicTask(pruneInterval, func(ctx context.Context) {
			n, pruneErr := history.Prune(ctx, time.Now().AddDate(0, 0, -retention))
			if pruneErr != nil {
				log.Error("history prune failed", "error", pruneErr)
				return
			}
			if n > 0 {
				log.Info("history pruned", "rows", n, "retention_days", retention)
			}
		}); err != nil {
			log.Warn("history pruning disabled", "error", err)
		}
	}

	if err := server.Start(ctx); err != nil {
		bridge.Stop()
		server.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("starting point server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if fileNotifier != nil {
		g.Go(func() error { return fileNotifier.Run(gctx) })
		log.Info("watching source files", "paths", fileNotifier.WatchedPaths())
	}
	if cfg.Notify.Signals {
		signals := enocean.NewSignalNotifier(bridge.Events(), bridge.Reload, log)
		g.Go(func() error { return signals.Run(gctx) })
	}
	if cfg.Bridge.WatchControlFile {
		watcher := enocean.NewControlWatcher(bridge.ControlFilePath(), enocean.DefaultReloadDebounce, bridge.Reload, log)
		g.Go(func() error {
			if watchErr := watcher.Run(gctx); watchErr != nil {
				log.Warn("control file watching stopped", "error", watchErr)
			}
			return nil
		})
	}

	g.Go(func() error {
		if waitErr := server.Wait(); waitErr != nil {
			return fmt.Errorf("point server: %w", waitErr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")

		// Stop scanning before the scheduler and sinks go away.
		bridge.Stop()
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing point server", "error", closeErr)
		}
		return nil
	})

	log.Info("initialisation complete, waiting for shutdown signal")
	err = g.Wait()

	// Deferred Close() calls run in reverse order: Redis, InfluxDB, MQTT,
	// history, database.
	log.Info("EnOcean bridge stopped", "stats", bridge.Stats())
	return err
}

// openDatabase opens the SQLite database and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// exitCode maps a run error to a process exit status. A missing control
// file exits 2 so service managers can tell it from a runtime failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, enocean.ErrConfigOpen):
		return 2
	default:
		return 1
	}
}
