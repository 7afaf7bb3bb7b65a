package enocean

import "sync/atomic"

// EventState is the per-channel notification flag.
type EventState int32

const (
	// EventEmpty marks a slot with no registered channel. The scan stops at the first one.
	EventEmpty EventState = iota

	// EventAcknowledged marks a registered channel with nothing new.
	EventAcknowledged

	// EventPending marks a channel whose sources have new data.
	EventPending
)

// String returns the state name.
func (s EventState) String() string {
	switch s {
	case EventEmpty:
		return "empty"
	case EventAcknowledged:
		return "acknowledged"
	case EventPending:
		return "pending"
	default:
		return "unknown"
	}
}

// EventTable is a fixed array of per-channel flags.
//
// Notify is a single compare-and-swap and may be called from any goroutine,
// including signal and fsnotify handlers. Only the scanner clears a flag.
type EventTable struct {
	slots [MaxChannels]atomic.Int32
}

// NewEventTable returns a table with the first n slots Acknowledged.
func NewEventTable(n int) *EventTable {
	t := &EventTable{}
	t.Reset(n)
	return t
}

// Reset sizes the table for n registered channels. Slots below n keep their
// state (Empty becomes Acknowledged); slots at or above n become Empty.
func (t *EventTable) Reset(n int) {
	for i := range t.slots {
		if i < n {
			t.slots[i].CompareAndSwap(int32(EventEmpty), int32(EventAcknowledged))
		} else {
			t.slots[i].Store(int32(EventEmpty))
		}
	}
}

// Notify marks channel i Pending. It returns true if the flag changed.
// Repeated notifications collapse; out-of-range and Empty slots are ignored.
func (t *EventTable) Notify(i int) bool {
	if i < 0 || i >= MaxChannels {
		return false
	}
	return t.slots[i].CompareAndSwap(int32(EventAcknowledged), int32(EventPending))
}

// NotifyAll marks every registered channel Pending and returns how many changed.
func (t *EventTable) NotifyAll() int {
	n := 0
	for i := range t.slots {
		if t.State(i) == EventEmpty {
			break
		}
		if t.Notify(i) {
			n++
		}
	}
	return n
}

// State returns the flag for slot i. Out-of-range slots report Empty.
func (t *EventTable) State(i int) EventState {
	if i < 0 || i >= MaxChannels {
		return EventEmpty
	}
	return EventState(t.slots[i].Load())
}

// Claim moves slot i from Pending to Acknowledged and reports whether it was Pending.
func (t *EventTable) Claim(i int) bool {
	if i < 0 || i >= MaxChannels {
		return false
	}
	return t.slots[i].CompareAndSwap(int32(EventPending), int32(EventAcknowledged))
}

// PendingCount returns the number of Pending slots before the first Empty one.
func (t *EventTable) PendingCount() int {
	n := 0
	for i := range t.slots {
		s := t.State(i)
		if s == EventEmpty {
			break
		}
		if s == EventPending {
			n++
		}
	}
	return n
}
