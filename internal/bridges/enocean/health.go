package enocean

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
)

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID   string
	instanceID string
	version    string
	topic      string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher
	stats      StatsSource

	// Channel and source counts (updated on every registry load)
	channels   int
	sources    int
	registryMu sync.RWMutex

	// lastErrors is the publish error count seen at the previous report.
	lastErrors uint64

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// *mqtt.Client implements it.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// StatsSource provides scanner counters. *Scanner implements it.
type StatsSource interface {
	Stats() ScannerStats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Topic is the health topic. Default: mqtt.Topics{}.Health().
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Stats provides cycle counters.
	Stats StatsSource
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	topic := cfg.Topic
	if topic == "" {
		topic = mqtt.Topics{}.Health()
	}

	return &HealthReporter{
		bridgeID:   cfg.BridgeID,
		instanceID: uuid.NewString(),
		version:    cfg.Version,
		topic:      topic,
		startTime:  time.Now(),
		interval:   interval,
		publisher:  cfg.Publisher,
		stats:      cfg.Stats,
		done:       make(chan struct{}),
	}
}

// Start begins periodic health reporting.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "")
	})
}

// InstanceID returns the id generated for this process.
func (h *HealthReporter) InstanceID() string {
	return h.instanceID
}

// SetRegistry records the channel and source counts of reg.
func (h *HealthReporter) SetRegistry(reg *Registry) {
	h.registryMu.Lock()
	h.channels = reg.Len()
	h.sources = reg.SourceCount()
	h.registryMu.Unlock()
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status. Publish failures
// count against the interval since the previous report only.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	h.registryMu.RLock()
	channels := h.channels
	h.registryMu.RUnlock()
	if channels == 0 {
		return HealthDegraded, "no channels loaded"
	}

	if h.stats != nil {
		errs := h.stats.Stats().PublishErrors
		h.registryMu.Lock()
		prev := h.lastErrors
		h.lastErrors = errs
		h.registryMu.Unlock()
		if errs > prev {
			return HealthDegraded, "publish failures"
		}
	}

	return HealthHealthy, ""
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	h.registryMu.RLock()
	channels, sources := h.channels, h.sources
	h.registryMu.RUnlock()

	var stats ScannerStats
	if h.stats != nil {
		stats = h.stats.Stats()
	}

	msg := NewHealthMessage(h.bridgeID, h.instanceID, h.version, status, channels, sources, stats, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
