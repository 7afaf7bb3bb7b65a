package enocean

import (
	"fmt"
	"slices"
)

// Capacity limits of the channel registry.
const (
	// MaxChannels is the number of channel slots; further lines are dropped.
	MaxChannels = 256

	// MaxSources is the number of value files a single channel may list.
	MaxSources = 16
)

// ChannelRecord describes one EnOcean device and the files its values land in.
// Records are immutable once loaded; a reload replaces the whole Registry.
type ChannelRecord struct {
	// ID is the 32-bit EnOcean device id, written in hex in the control file.
	ID uint32 `json:"id"`

	// Profile is the EnOcean Equipment Profile, e.g. "A5-02-05".
	Profile string `json:"profile"`

	// Description is free text from the control file.
	Description string `json:"description"`

	// Sources lists 1..MaxSources value file names.
	Sources []string `json:"sources"`
}

// IDString returns the id as eight upper-case hex digits.
func (r ChannelRecord) IDString() string {
	return FormatID(r.ID)
}

// FormatID renders an EnOcean id as eight upper-case hex digits.
func FormatID(id uint32) string {
	return fmt.Sprintf("%08X", id)
}

// Registry is the ordered, read-only table of loaded channels.
// Index i is the channel's position in the control file among accepted lines.
type Registry struct {
	records []ChannelRecord
}

// NewRegistry builds a registry from records, keeping at most MaxChannels.
// The slice is copied.
func NewRegistry(records []ChannelRecord) *Registry {
	if len(records) > MaxChannels {
		records = records[:MaxChannels]
	}
	r := &Registry{records: make([]ChannelRecord, len(records))}
	for i, rec := range records {
		rec.Sources = append([]string(nil), rec.Sources...)
		r.records[i] = rec
	}
	return r
}

// Len returns the number of channels. A nil registry is empty.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// Channel returns the record at index i.
func (r *Registry) Channel(i int) (ChannelRecord, bool) {
	if r == nil || i < 0 || i >= len(r.records) {
		return ChannelRecord{}, false
	}
	return r.records[i], true
}

// IndexOf returns the index of the channel with the same ID, profile and
// sources as rec, or -1.
func (r *Registry) IndexOf(rec ChannelRecord) int {
	for i := 0; i < r.Len(); i++ {
		if sameChannel(r.records[i], rec) {
			return i
		}
	}
	return -1
}

func sameChannel(a, b ChannelRecord) bool {
	return a.ID == b.ID && a.Profile == b.Profile && slices.Equal(a.Sources, b.Sources)
}

// Records returns a copy of every record in index order.
func (r *Registry) Records() []ChannelRecord {
	if r == nil {
		return nil
	}
	out := make([]ChannelRecord, len(r.records))
	copy(out, r.records)
	return out
}

// SourceCount returns the total number of sources across all channels.
func (r *Registry) SourceCount() int {
	n := 0
	for i := 0; i < r.Len(); i++ {
		n += len(r.records[i].Sources)
	}
	return n
}
