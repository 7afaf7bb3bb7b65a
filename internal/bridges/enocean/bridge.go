package enocean

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
)

// declareTimeout bounds mirroring the registry into a ChannelStore.
const declareTimeout = 10 * time.Second

// ChannelStore persists the loaded registry. *sink.HistorySink implements it.
type ChannelStore interface {
	StoreChannels(ctx context.Context, records []ChannelRecord) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the bridge section of the loaded configuration.
	Config config.BridgeConfig

	// Publisher receives every sample. Required.
	Publisher Publisher

	// Scheduler runs the scan cycle. Required.
	Scheduler TaskScheduler

	// Points is told about every point at load time so clients see it
	// before the first value arrives. Optional.
	Points PointDeclarer

	// Health publishes health messages. Optional.
	Health HealthPublisher

	// HealthTopic overrides the standard health topic.
	HealthTopic string

	// Channels mirrors the registry on every load. Optional.
	Channels ChannelStore

	// OnCycle is called after every scan pass. Optional.
	OnCycle func(CycleResult)

	// Logger is optional structured logger.
	Logger Logger

	// Version is reported in health messages.
	Version string
}

// Bridge loads the channel registry, owns the event table and runs the
// scan/publish cycle on the scheduler.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       config.BridgeConfig
	events    *EventTable
	scanner   *Scanner
	scheduler TaskScheduler
	points    PointDeclarer
	channels  ChannelStore
	onCycle   func(CycleResult)
	health    *HealthReporter

	// reloadMu serialises Start and Reload.
	reloadMu  sync.Mutex
	listeners []func(*Registry)

	done     chan struct{}
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if opts.Config.ScanInterval <= 0 {
		return nil, fmt.Errorf("invalid scan interval %s", opts.Config.ScanInterval)
	}

	events := NewEventTable(0)
	scanner, err := NewScanner(ScannerOptions{
		Events:        events,
		Publisher:     opts.Publisher,
		DataDir:       opts.Config.DataDir,
		Prefix:        opts.Config.Domain,
		MaxNameLength: opts.Config.MaxNameLength,
		Workers:       opts.Config.Workers,
		LogSamples:    opts.Config.LogSamples,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:       opts.Config,
		events:    events,
		scanner:   scanner,
		scheduler: opts.Scheduler,
		points:    opts.Points,
		channels:  opts.Channels,
		onCycle:   opts.OnCycle,
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}

	if opts.Health != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			BridgeID:  opts.Config.ID,
			Version:   opts.Version,
			Topic:     opts.HealthTopic,
			Interval:  time.Duration(opts.Config.HealthInterval) * time.Second,
			Publisher: opts.Health,
			Stats:     scanner,
		})
		if opts.Logger != nil {
			b.health.SetLogger(opts.Logger)
		}
	}

	return b, nil
}

// ControlFilePath returns the resolved path of the control file.
func (b *Bridge) ControlFilePath() string {
	return ResolvePath(b.cfg.DataDir, b.cfg.ControlFile)
}

// Events returns the bridge's event table, for wiring notifiers.
func (b *Bridge) Events() *EventTable {
	return b.events
}

// OnReload registers fn to run with every newly installed registry,
// including the first one loaded by Start. Register before Start.
func (b *Bridge) OnReload(fn func(*Registry)) {
	b.reloadMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.reloadMu.Unlock()
}

// Start loads the control file, declares every point and registers the
// scan cycle. An unopenable control file is returned as ErrConfigOpen.
func (b *Bridge) Start(ctx context.Context) error {
	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}
	}

	b.reloadMu.Lock()
	reg, n, err := Load(b.ControlFilePath(), b.getLogger())
	if err != nil {
		b.reloadMu.Unlock()
		return fmt.Errorf("loading channels: %w", err)
	}
	b.install(ctx, reg)
	b.reloadMu.Unlock()

	if b.cfg.InitialScan {
		b.events.NotifyAll()
	}

	if err := b.scheduler.RegisterPeriodicTask(b.cfg.ScanInterval, b.cycle); err != nil {
		return fmt.Errorf("registering scan cycle: %w", err)
	}

	if b.health != nil {
		b.health.Start(ctx)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.ID,
		"control_file", b.ControlFilePath(),
		"channels", n,
		"scan_interval", b.cfg.ScanInterval.String())
	return nil
}

// Stop gracefully shuts down the bridge. Cycles the scheduler runs after
// Stop do nothing.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		if b.health != nil {
			b.health.Stop()
		}

		b.logInfo("bridge stopped")
	})
}

// Reload re-reads the control file. On failure the current registry stays
// in place and the error is returned.
func (b *Bridge) Reload(ctx context.Context) error {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()

	reg, n, err := Load(b.ControlFilePath(), b.getLogger())
	if err != nil {
		return fmt.Errorf("reloading channels: %w", err)
	}
	b.install(ctx, reg)

	b.logInfo("channels reloaded", "channels", n, "sources", reg.SourceCount())
	return nil
}

// install makes reg current. Caller holds reloadMu.
func (b *Bridge) install(ctx context.Context, reg *Registry) {
	b.scanner.SetRegistry(reg)
	b.declarePoints(reg)

	if b.channels != nil {
		sctx, cancel := context.WithTimeout(ctx, declareTimeout)
		if err := b.channels.StoreChannels(sctx, reg.Records()); err != nil {
			b.logError("failed to store channels", err)
		}
		cancel()
	}

	if b.health != nil {
		b.health.SetRegistry(reg)
	}

	for _, fn := range b.listeners {
		fn(reg)
	}
}

// declarePoints declares every source of every channel with value 0.
func (b *Bridge) declarePoints(reg *Registry) {
	if b.points == nil {
		return
	}
	for _, rec := range reg.Records() {
		for _, src := range rec.Sources {
			name := b.scanner.PointName(src)
			if err := b.points.Declare(name, rec.Description, 0); err != nil {
				b.logWarn("failed to declare point", "point", name, "error", err)
			}
		}
	}
}

// cycle is the periodic task.
func (b *Bridge) cycle(ctx context.Context) {
	select {
	case <-b.done:
		return
	default:
	}

	res := b.scanner.Cycle(ctx)
	if b.onCycle != nil && res.Channels > 0 {
		b.onCycle(res)
	}
}

// Cycle runs one scan pass immediately.
func (b *Bridge) Cycle(ctx context.Context) CycleResult {
	return b.scanner.Cycle(ctx)
}

// Notify marks channel i as having new data.
func (b *Bridge) Notify(i int) bool {
	return b.events.Notify(i)
}

// NotifyAll marks every registered channel as having new data.
func (b *Bridge) NotifyAll() int {
	return b.events.NotifyAll()
}

// Registry returns the registry currently in use.
func (b *Bridge) Registry() *Registry {
	return b.scanner.Registry()
}

// PointName returns the published name for a source.
func (b *Bridge) PointName(source string) string {
	return b.scanner.PointName(source)
}

// Stats returns cumulative scanner counters.
func (b *Bridge) Stats() ScannerStats {
	return b.scanner.Stats()
}

// HealthInstanceID returns the health reporter's instance id, or "" when
// health reporting is disabled.
func (b *Bridge) HealthInstanceID() string {
	if b.health == nil {
		return ""
	}
	return b.health.InstanceID()
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	logWarn(b.getLogger(), msg, keysAndValues...)
}

func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
