package enocean

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// Events is the shared notification table. Required.
	Events *EventTable

	// Publisher receives every sample. Required.
	Publisher Publisher

	// DataDir resolves relative source names.
	DataDir string

	// Prefix is prepended to every point name.
	Prefix string

	// MaxNameLength bounds point names (DefaultMaxNameLength if zero).
	MaxNameLength int

	// Workers is how many channels are drained at once (1 if zero).
	Workers int

	// LogSamples logs each published sample at info level.
	LogSamples bool

	// Logger is optional.
	Logger Logger
}

// CycleResult summarises one pass of the scanner.
type CycleResult struct {
	Channels      int
	Samples       int
	ReadMisses    int
	PublishErrors int
	Duration      time.Duration

	// Summary is the "enoceancallback: name=value ..." line, empty when no channel was pending.
	Summary string
}

// ScannerStats are cumulative counters since the scanner was created.
type ScannerStats struct {
	Cycles        uint64    `json:"cycles"`
	Channels      uint64    `json:"channels_drained"`
	Samples       uint64    `json:"samples"`
	ReadMisses    uint64    `json:"read_misses"`
	PublishErrors uint64    `json:"publish_errors"`
	LastCycle     time.Time `json:"last_cycle,omitzero"`
}

// Scanner drains Pending channels and publishes their values.
//
// Cycle and SetRegistry serialise on an internal lock, so a reload never
// runs in the middle of a drain.
type Scanner struct {
	events     *EventTable
	publisher  Publisher
	dataDir    string
	prefix     string
	maxNameLen int
	workers    int
	logSamples bool
	logger     Logger

	mu       sync.Mutex
	registry *Registry
	cursors  []*Cursor

	cycles        atomic.Uint64
	channels      atomic.Uint64
	samples       atomic.Uint64
	readMisses    atomic.Uint64
	publishErrors atomic.Uint64
	lastCycle     atomic.Int64
}

// NewScanner creates a scanner with an empty registry.
func NewScanner(opts ScannerOptions) (*Scanner, error) {
	if opts.Events == nil {
		return nil, errors.New("enocean: scanner requires an event table")
	}
	if opts.Publisher == nil {
		return nil, errors.New("enocean: scanner requires a publisher")
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = DefaultMaxNameLength
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	s := &Scanner{
		events:     opts.Events,
		publisher:  opts.Publisher,
		dataDir:    opts.DataDir,
		prefix:     opts.Prefix,
		maxNameLen: opts.MaxNameLength,
		workers:    opts.Workers,
		logSamples: opts.LogSamples,
		logger:     opts.Logger,
	}
	s.SetRegistry(NewRegistry(nil))
	return s, nil
}

// SetRegistry swaps in a new registry, resizes the event table and creates
// fresh cursors. It waits for a running cycle to finish.
//
// Pending flags follow their channel: a channel still present after the
// reload stays Pending at its new index, and a slot whose index now holds a
// different channel is cleared.
func (s *Scanner) SetRegistry(reg *Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.registry
	var moved []int
	for i := 0; i < old.Len(); i++ {
		if s.events.State(i) != EventPending {
			continue
		}
		rec, _ := old.Channel(i)
		if j := reg.IndexOf(rec); j >= 0 {
			moved = append(moved, j)
		}
	}

	s.registry = reg
	s.events.Reset(reg.Len())
	for i := 0; i < reg.Len(); i++ {
		prev, ok := old.Channel(i)
		next, _ := reg.Channel(i)
		if !ok || !sameChannel(prev, next) {
			s.events.Claim(i)
		}
	}
	for _, j := range moved {
		s.events.Notify(j)
	}
	s.cursors = make([]*Cursor, s.workers)
	for i := range s.cursors {
		s.cursors[i] = NewCursor(reg, s.dataDir)
	}
}

// Registry returns the registry currently in use.
func (s *Scanner) Registry() *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// PointName returns the published name for a source.
func (s *Scanner) PointName(source string) string {
	return PointName(s.prefix, source, s.maxNameLen)
}

// channelResult is what draining one channel produced.
type channelResult struct {
	index         int
	names         []string
	values        []float64
	readMisses    int
	publishErrors int
}

// Cycle runs one scan pass: walk the table from slot 0 to the first Empty
// slot, claim each Pending channel and drain it through a cursor.
//
// A notification that arrives while its channel is being drained sets the
// flag again and is handled by the next cycle. A pass is never cut short:
// every channel Pending when it starts is drained, even if the scheduler
// is shutting down.
func (s *Scanner) Cycle(_ context.Context) CycleResult {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []channelResult
	if s.workers == 1 {
		results = s.drainSequential()
	} else {
		results = s.drainParallel()
	}

	res := CycleResult{Channels: len(results)}
	var sum *summary
	if len(results) > 0 {
		sum = newSummary()
	}
	for _, r := range results {
		res.Samples += len(r.names)
		res.ReadMisses += r.readMisses
		res.PublishErrors += r.publishErrors
		for i, name := range r.names {
			sum.add(name, r.values[i])
		}
	}
	if sum != nil {
		res.Summary = sum.String()
	}
	res.Duration = time.Since(start)

	s.cycles.Add(1)
	s.channels.Add(uint64(res.Channels))
	s.samples.Add(uint64(res.Samples))
	s.readMisses.Add(uint64(res.ReadMisses))
	s.publishErrors.Add(uint64(res.PublishErrors))
	s.lastCycle.Store(start.UnixNano())

	if res.Summary != "" && s.logger != nil {
		s.logger.Info(res.Summary,
			"channels", res.Channels,
			"samples", res.Samples,
			"read_misses", res.ReadMisses,
			"publish_errors", res.PublishErrors,
		)
	}
	return res
}

func (s *Scanner) drainSequential() []channelResult {
	var results []channelResult
	n := s.registry.Len()
	for i := 0; i < MaxChannels; i++ {
		if s.events.State(i) == EventEmpty {
			break
		}
		if i >= n || !s.events.Claim(i) {
			continue
		}
		results = append(results, s.drain(s.cursors[0], i))
	}
	return results
}

func (s *Scanner) drainParallel() []channelResult {
	var claimed []int
	n := s.registry.Len()
	for i := 0; i < MaxChannels; i++ {
		if s.events.State(i) == EventEmpty {
			break
		}
		if i < n && s.events.Claim(i) {
			claimed = append(claimed, i)
		}
	}
	if len(claimed) == 0 {
		return nil
	}

	pool := make(chan *Cursor, len(s.cursors))
	for _, c := range s.cursors {
		pool <- c
	}

	results := make([]channelResult, len(claimed))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for k, idx := range claimed {
		k, idx := k, idx
		g.Go(func() error {
			c := <-pool
			results[k] = s.drain(c, idx)
			pool <- c
			return nil
		})
	}
	_ = g.Wait() // workers never return an error
	return results
}

// drain reads every source of channel idx and publishes each sample.
func (s *Scanner) drain(c *Cursor, idx int) channelResult {
	r := channelResult{index: idx}
	for {
		sample, err := c.NextSample(idx)
		if errors.Is(err, ErrEndOfChannel) {
			return r
		}
		if err != nil {
			r.readMisses++
			s.logDebug("no value this cycle", "channel", idx, "error", err)
			return r
		}

		name := s.PointName(sample.SourceName)
		if err := publishOne(s.publisher, name, sample); err != nil {
			r.publishErrors++
			s.logError("publish failed", "point", name, "error", err)
		}
		r.names = append(r.names, name)
		r.values = append(r.values, sample.Value)

		s.logDebug("sample",
			"channel", idx,
			"id", FormatID(sample.ID),
			"position", sample.Position,
			"source", sample.SourceName,
			"value", sample.Value,
		)
		if s.logSamples && s.logger != nil {
			s.logger.Info("sample",
				"channel", idx,
				"enocean_id", FormatID(sample.ID),
				"position", sample.Position,
				"point", name,
				"value", sample.Value,
			)
		}
	}
}

// Stats returns cumulative counters.
func (s *Scanner) Stats() ScannerStats {
	st := ScannerStats{
		Cycles:        s.cycles.Load(),
		Channels:      s.channels.Load(),
		Samples:       s.samples.Load(),
		ReadMisses:    s.readMisses.Load(),
		PublishErrors: s.publishErrors.Load(),
	}
	if ns := s.lastCycle.Load(); ns != 0 {
		st.LastCycle = time.Unix(0, ns).UTC()
	}
	return st
}

func (s *Scanner) logDebug(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, keysAndValues...)
	}
}

func (s *Scanner) logError(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Error(msg, keysAndValues...)
	}
}
