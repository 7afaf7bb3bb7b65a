package enocean

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestScanner(t *testing.T, dir, prefix string, workers int, pub Publisher) (*Scanner, *EventTable) {
	t.Helper()
	events := NewEventTable(0)
	s, err := NewScanner(ScannerOptions{
		Events:    events,
		Publisher: pub,
		DataDir:   dir,
		Prefix:    prefix,
		Workers:   workers,
	})
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	return s, events
}

func TestNewScanner_RequiresCollaborators(t *testing.T) {
	if _, err := NewScanner(ScannerOptions{Publisher: &recordingPublisher{}}); err == nil {
		t.Error("expected error without event table")
	}
	if _, err := NewScanner(ScannerOptions{Events: NewEventTable(0)}); err == nil {
		t.Error("expected error without publisher")
	}
}

func TestScanner_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	control := writeFile(t, dir, "eofilter.txt", "0017A2B3,A5-02-05,Outdoor Temp,temp1.txt\n")
	writeFile(t, dir, "temp1.txt", "21.4 C\n")

	reg, n, err := Load(control, nil)
	if err != nil || n != 1 {
		t.Fatalf("Load() = %d, %v", n, err)
	}

	pub := &recordingPublisher{}
	s, events := newTestScanner(t, dir, "Sensors/", 1, pub)
	s.SetRegistry(reg)

	events.Notify(0)
	res := s.Cycle(context.Background())

	calls := pub.snapshot()
	if len(calls) != 1 {
		t.Fatalf("publishes = %+v, want exactly one", calls)
	}
	if calls[0].name != "Sensors/temp1.txt" || calls[0].value != 21.4 {
		t.Errorf("publish = %+v, want Sensors/temp1.txt=21.4", calls[0])
	}
	if res.Channels != 1 || res.Samples != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Summary != "enoceancallback: Sensors/temp1.txt=21.4 " {
		t.Errorf("Summary = %q", res.Summary)
	}
	if events.State(0) != EventAcknowledged {
		t.Errorf("State(0) = %v after cycle", events.State(0))
	}
}

func TestScanner_DoublePendingDrainsOnce(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		writeFile(t, dir, name, "1\n")
	}
	pub := &recordingPublisher{}
	s, events := newTestScanner(t, dir, "", 1, pub)
	s.SetRegistry(NewRegistry([]ChannelRecord{{ID: 1, Sources: []string{"a", "b", "c"}}}))

	events.Notify(0)
	events.Notify(0)
	s.Cycle(context.Background())
	if got := len(pub.snapshot()); got != 3 {
		t.Fatalf("publishes after first cycle = %d, want 3", got)
	}

	res := s.Cycle(context.Background())
	if got := len(pub.snapshot()); got != 3 || res.Channels != 0 || res.Summary != "" {
		t.Errorf("second cycle published again: %d calls, result %+v", got, res)
	}
}

func TestScanner_NoPendingNoPublish(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", "1\n")
	pub := &recordingPublisher{}
	s, _ := newTestScanner(t, dir, "", 1, pub)
	s.SetRegistry(NewRegistry([]ChannelRecord{{ID: 1, Sources: []string{"a"}}}))

	s.Cycle(context.Background())
	if len(pub.snapshot()) != 0 {
		t.Error("published without a notification")
	}
}

func TestScanner_NonNumericRetriedOnNextPending(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "v", "offline\n")
	pub := &recordingPublisher{}
	s, events := newTestScanner(t, dir, "", 1, pub)
	s.SetRegistry(NewRegistry([]ChannelRecord{{ID: 1, Sources: []string{"v"}}}))

	events.Notify(0)
	res := s.Cycle(context.Background())
	if res.Samples != 0 || res.ReadMisses != 1 {
		t.Fatalf("first cycle = %+v", res)
	}

	writeFile(t, dir, "v", "7\n")
	if res := s.Cycle(context.Background()); res.Samples != 0 {
		t.Fatalf("cycle without notification published: %+v", res)
	}

	events.Notify(0)
	res = s.Cycle(context.Background())
	calls := pub.snapshot()
	if res.Samples != 1 || len(calls) != 1 || calls[0].value != 7 {
		t.Errorf("retry cycle = %+v, calls %+v", res, calls)
	}
}

func TestScanner_PublishErrorsDoNotAbortCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", "1\n")
	writeFile(t, dir, "b", "2\n")
	writeFile(t, dir, "c", "3\n")

	logger := &mockLogger{}
	pub := &recordingPublisher{failOn: map[string]bool{"a": true}}
	events := NewEventTable(0)
	s, err := NewScanner(ScannerOptions{Events: events, Publisher: pub, DataDir: dir, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	s.SetRegistry(NewRegistry([]ChannelRecord{
		{ID: 1, Sources: []string{"a", "b"}},
		{ID: 2, Sources: []string{"c"}},
	}))

	events.NotifyAll()
	res := s.Cycle(context.Background())
	if res.Samples != 3 || res.PublishErrors != 1 {
		t.Errorf("result = %+v, want 3 samples and 1 publish error", res)
	}
	if len(pub.snapshot()) != 3 {
		t.Errorf("publish attempts = %d, want 3", len(pub.snapshot()))
	}
	if logger.count("error", "publish failed") != 1 {
		t.Errorf("expected one publish error log")
	}
	if logger.count("info", "enoceancallback: ") != 1 {
		t.Errorf("expected the summary line at info")
	}
	if st := s.Stats(); st.PublishErrors != 1 || st.Samples != 3 || st.Cycles != 1 || st.LastCycle.IsZero() {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestScanner_NamesTruncated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "temperature.txt", "5\n")
	pub := &recordingPublisher{}
	events := NewEventTable(0)
	s, err := NewScanner(ScannerOptions{
		Events:        events,
		Publisher:     pub,
		DataDir:       dir,
		Prefix:        "Sensors/",
		MaxNameLength: 12,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.SetRegistry(NewRegistry([]ChannelRecord{{ID: 1, Sources: []string{"temperature.txt"}}}))

	events.Notify(0)
	s.Cycle(context.Background())
	calls := pub.snapshot()
	if len(calls) != 1 || calls[0].name != "Sensors/tem" {
		t.Errorf("publishes = %+v, want Sensors/tem", calls)
	}
}

func parallelFixture(t *testing.T, channels, sources int) (string, *Registry) {
	t.Helper()
	dir := t.TempDir()
	var records []ChannelRecord
	for c := 0; c < channels; c++ {
		rec := ChannelRecord{ID: uint32(c)}
		for s := 0; s < sources; s++ {
			name := fmt.Sprintf("c%d_s%d", c, s)
			writeFile(t, dir, name, fmt.Sprintf("%d\n", c*100+s))
			rec.Sources = append(rec.Sources, name)
		}
		records = append(records, rec)
	}
	return dir, NewRegistry(records)
}

func TestScanner_ParallelWorkers(t *testing.T) {
	dir, reg := parallelFixture(t, 10, 2)
	pub := &recordingPublisher{}
	s, events := newTestScanner(t, dir, "p/", 4, pub)
	s.SetRegistry(reg)

	events.NotifyAll()
	res := s.Cycle(context.Background())
	if res.Channels != 10 || res.Samples != 20 {
		t.Fatalf("result = %+v", res)
	}
	if got := len(pub.snapshot()); got != 20 {
		t.Errorf("publishes = %d, want 20", got)
	}

	var want strings.Builder
	want.WriteString("enoceancallback: ")
	for c := 0; c < 10; c++ {
		for j := 0; j < 2; j++ {
			fmt.Fprintf(&want, "p/c%d_s%d=%d ", c, j, c*100+j)
		}
	}
	if res.Summary != want.String() {
		t.Errorf("Summary = %q\nwant %q", res.Summary, want.String())
	}
	if events.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after cycle", events.PendingCount())
	}
}

func TestScanner_ShutdownFinishesPass(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir, reg := parallelFixture(t, 4, 1)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var mu sync.Mutex
			var published []string
			pub := PublisherFunc(func(name string, _ float64) error {
				mu.Lock()
				defer mu.Unlock()
				published = append(published, name)
				cancel() // shutdown begins while the pass is running
				return nil
			})

			s, events := newTestScanner(t, dir, "", workers, pub)
			s.SetRegistry(reg)
			events.NotifyAll()

			res := s.Cycle(ctx)

			if res.Channels != 4 || len(published) != 4 {
				t.Errorf("drained %d channels, published %v, want all 4", res.Channels, published)
			}
			if got := events.PendingCount(); got != 0 {
				t.Errorf("PendingCount() = %d, want 0", got)
			}
		})
	}
}

func TestScanner_NotifyDuringDrainHandledNextCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", "1\n")
	writeFile(t, dir, "b", "2\n")

	var events *EventTable
	calls := 0
	pub := PublisherFunc(func(string, float64) error {
		calls++
		if calls == 1 {
			events.Notify(0)
		}
		return nil
	})

	var s *Scanner
	s, events = newTestScanner(t, dir, "", 1, pub)
	s.SetRegistry(NewRegistry([]ChannelRecord{{ID: 1, Sources: []string{"a", "b"}}}))

	events.Notify(0)
	s.Cycle(context.Background())
	if calls != 2 {
		t.Fatalf("first cycle published %d values, want 2", calls)
	}
	if events.State(0) != EventPending {
		t.Fatalf("State(0) = %v, want pending after mid-drain notification", events.State(0))
	}

	s.Cycle(context.Background())
	if calls != 4 {
		t.Errorf("total publishes = %d, want 4 (second cycle drains again)", calls)
	}
	if events.State(0) != EventAcknowledged {
		t.Errorf("State(0) = %v after second cycle", events.State(0))
	}
}

func TestScanner_SetRegistryResizesEvents(t *testing.T) {
	dir, reg := parallelFixture(t, 3, 1)
	s, events := newTestScanner(t, dir, "", 1, &recordingPublisher{})
	s.SetRegistry(reg)
	events.Notify(1)

	_, smaller := parallelFixture(t, 2, 1)
	s.SetRegistry(smaller)
	if events.State(1) != EventPending {
		t.Errorf("State(1) = %v, want pending kept", events.State(1))
	}
	if events.State(2) != EventEmpty {
		t.Errorf("State(2) = %v, want empty", events.State(2))
	}
	if s.Registry() != smaller {
		t.Error("Registry() did not return the new registry")
	}
}

func TestScanner_SetRegistryMovesPendingWithChannel(t *testing.T) {
	dir := t.TempDir()
	a := ChannelRecord{ID: 0xA, Sources: []string{"a"}}
	b := ChannelRecord{ID: 0xB, Sources: []string{"b"}}
	c := ChannelRecord{ID: 0xC, Sources: []string{"c"}}
	s, events := newTestScanner(t, dir, "", 1, &recordingPublisher{})
	s.SetRegistry(NewRegistry([]ChannelRecord{a, b}))
	events.Notify(1)

	// b moves to index 0; a now sits at 1 and was never notified.
	s.SetRegistry(NewRegistry([]ChannelRecord{b, a}))
	if events.State(0) != EventPending {
		t.Errorf("State(0) = %v, want pending (b moved here)", events.State(0))
	}
	if events.State(1) != EventAcknowledged {
		t.Errorf("State(1) = %v, want acknowledged", events.State(1))
	}

	// b is replaced by c at the same index.
	s.SetRegistry(NewRegistry([]ChannelRecord{c, a}))
	if events.State(0) != EventAcknowledged {
		t.Errorf("State(0) = %v, want cleared for replaced channel", events.State(0))
	}
	if events.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", events.PendingCount())
	}
}

func TestScanner_PointName(t *testing.T) {
	s, _ := newTestScanner(t, t.TempDir(), "Sensors/", 1, &recordingPublisher{})
	if got := s.PointName(filepath.Join("sub", "x.txt")); got != "Sensors/"+filepath.Join("sub", "x.txt") {
		t.Errorf("PointName() = %q", got)
	}
}
