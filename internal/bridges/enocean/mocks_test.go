package enocean

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// logEntry is one captured log call.
type logEntry struct {
	level string
	msg   string
	args  []any
}

// mockLogger records every call.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// count returns how many entries at level contain substr in their message.
func (l *mockLogger) count(level, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			n++
		}
	}
	return n
}

type publishCall struct {
	name  string
	value float64
}

// recordingPublisher captures publishes and optionally fails some names.
type recordingPublisher struct {
	mu     sync.Mutex
	calls  []publishCall
	failOn map[string]bool
}

func (p *recordingPublisher) Publish(name string, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{name: name, value: value})
	if p.failOn[name] {
		return errors.New("sink unavailable")
	}
	return nil
}

func (p *recordingPublisher) snapshot() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

// mockScheduler stores registered tasks so tests can run them by hand.
type mockScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	tasks    []func(ctx context.Context)
	err      error
}

func (s *mockScheduler) RegisterPeriodicTask(interval time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.interval = interval
	s.tasks = append(s.tasks, fn)
	return nil
}

func (s *mockScheduler) runAll(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]func(context.Context){}, s.tasks...)
	s.mu.Unlock()
	for _, fn := range tasks {
		fn(ctx)
	}
}

type declaredPoint struct {
	description string
	initial     float64
}

// mockDeclarer records declared points.
type mockDeclarer struct {
	mu     sync.Mutex
	points map[string]declaredPoint
}

func (d *mockDeclarer) Declare(name, description string, initial float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.points == nil {
		d.points = make(map[string]declaredPoint)
	}
	d.points[name] = declaredPoint{description: description, initial: initial}
	return nil
}

func (d *mockDeclarer) get(name string) (declaredPoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.points[name]
	return p, ok
}

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// channelLine builds a control line with the given sources.
func channelLine(id uint32, sources ...string) string {
	return fmt.Sprintf("%08X,A5-02-05,Channel %d,%s\n", id, id, strings.Join(sources, ","))
}
