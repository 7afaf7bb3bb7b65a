package enocean

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
)

// Notifier marks channels as having new data. *EventTable implements it.
type Notifier interface {
	Notify(i int) bool
	NotifyAll() int
}

// FileNotifier watches the directories holding value files and marks a
// channel Pending whenever one of its sources is written or created.
type FileNotifier struct {
	events  Notifier
	dataDir string
	logger  Logger

	// index maps a cleaned absolute source path to the channels listing it.
	index atomic.Pointer[map[string][]int]

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]bool
}

// NewFileNotifier creates the underlying fsnotify watcher. Call SetRegistry
// to choose which files matter, then Run.
func NewFileNotifier(events Notifier, dataDir string, logger Logger) (*FileNotifier, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		abs = dataDir
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	n := &FileNotifier{
		events:  events,
		dataDir: abs,
		logger:  logger,
		watcher: w,
		watched: make(map[string]bool),
	}
	empty := map[string][]int{}
	n.index.Store(&empty)
	return n, nil
}

// SetRegistry rebuilds the path index and starts watching any new directories.
// Directories that cannot be watched are logged and skipped.
func (n *FileNotifier) SetRegistry(reg *Registry) {
	index := make(map[string][]int)
	dirs := make(map[string]bool)

	for i := 0; i < reg.Len(); i++ {
		rec, _ := reg.Channel(i)
		for _, src := range rec.Sources {
			p := filepath.Clean(ResolvePath(n.dataDir, src))
			if !containsInt(index[p], i) {
				index[p] = append(index[p], i)
			}
			dirs[filepath.Dir(p)] = true
		}
	}
	n.index.Store(&index)

	n.mu.Lock()
	defer n.mu.Unlock()
	for dir := range dirs {
		if n.watched[dir] {
			continue
		}
		if err := n.watcher.Add(dir); err != nil {
			logWarn(n.logger, "cannot watch source directory", "dir", dir, "error", err)
			continue
		}
		n.watched[dir] = true
	}
}

// WatchedPaths returns the number of source paths currently indexed.
func (n *FileNotifier) WatchedPaths() int {
	return len(*n.index.Load())
}

// Run delivers notifications until ctx is cancelled, then closes the watcher.
func (n *FileNotifier) Run(ctx context.Context) error {
	defer n.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return nil
			}
			n.handle(ev)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return nil
			}
			logWarn(n.logger, "file watch error", "error", err)
		}
	}
}

func (n *FileNotifier) handle(ev fsnotify.Event) {
	// Receivers often write a temp file and rename it over the source.
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	for _, i := range (*n.index.Load())[filepath.Clean(ev.Name)] {
		n.events.Notify(i)
	}
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Subscriber is the MQTT subscription contract. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// MQTTNotifier turns messages on a topic into channel notifications.
//
// The payload is a channel index ("3"), a JSON object ({"index":3}), or
// "all" to mark every channel.
type MQTTNotifier struct {
	events Notifier
	topic  string
	logger Logger
}

// NewMQTTNotifier returns a notifier for topic. An empty topic means
// mqtt.Topics{}.Notify().
func NewMQTTNotifier(events Notifier, topic string, logger Logger) *MQTTNotifier {
	if topic == "" {
		topic = mqtt.Topics{}.Notify()
	}
	return &MQTTNotifier{events: events, topic: topic, logger: logger}
}

// Topic returns the subscribed topic.
func (n *MQTTNotifier) Topic() string {
	return n.topic
}

// Start subscribes on sub with QoS 1.
func (n *MQTTNotifier) Start(sub Subscriber) error {
	if err := sub.Subscribe(n.topic, 1, n.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to %s: %w", n.topic, err)
	}
	return nil
}

type notifyPayload struct {
	Index *int `json:"index"`
}

// HandleMessage is the subscription handler.
func (n *MQTTNotifier) HandleMessage(_ string, payload []byte) error {
	text := strings.TrimSpace(string(payload))

	switch {
	case strings.EqualFold(text, "all"):
		n.events.NotifyAll()
		return nil
	case strings.HasPrefix(text, "{"):
		var p notifyPayload
		if err := json.Unmarshal([]byte(text), &p); err != nil || p.Index == nil {
			return fmt.Errorf("%w: %q", ErrInvalidNotification, text)
		}
		n.events.Notify(*p.Index)
		return nil
	}

	i, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidNotification, text)
	}
	n.events.Notify(i)
	return nil
}

// SignalNotifier maps process signals onto the bridge:
// SIGUSR1 marks every channel Pending and SIGHUP reloads the registry.
type SignalNotifier struct {
	events Notifier
	reload func(ctx context.Context) error
	logger Logger
}

// NewSignalNotifier returns a notifier; reload may be nil.
func NewSignalNotifier(events Notifier, reload func(ctx context.Context) error, logger Logger) *SignalNotifier {
	return &SignalNotifier{events: events, reload: reload, logger: logger}
}

// Run handles signals until ctx is cancelled.
func (n *SignalNotifier) Run(ctx context.Context) error {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			n.handle(ctx, sig)
		}
	}
}

func (n *SignalNotifier) handle(ctx context.Context, sig os.Signal) {
	switch sig {
	case syscall.SIGUSR1:
		marked := n.events.NotifyAll()
		if n.logger != nil {
			n.logger.Info("all channels marked pending", "signal", sig.String(), "marked", marked)
		}
	case syscall.SIGHUP:
		if n.reload == nil {
			return
		}
		if err := n.reload(ctx); err != nil && n.logger != nil {
			n.logger.Error("reload on signal failed", "error", err)
		}
	}
}
