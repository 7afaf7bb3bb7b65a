package enocean

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// maxValueLine bounds a single line of a value file.
const maxValueLine = 64 * 1024

// ValueSample is one value read from one source of one channel.
type ValueSample struct {
	ChannelIndex int
	ID           uint32
	Profile      string
	SourceName   string
	Description  string

	// Position is the source's index within the channel; Total is the channel's source count.
	Position int
	Total    int

	Value  float64
	ReadAt time.Time
}

// Cursor walks the sources of a channel, one per call to Next.
//
// Asking for a different channel, or asking again after the end was
// reported, starts over at the first source. A failed read leaves the
// position where it was, so the same source is retried next time.
//
// A Cursor is not safe for concurrent use; each scanner worker owns one.
type Cursor struct {
	registry     *Registry
	dataDir      string
	lastChannel  int
	lastPosition int
	now          func() time.Time
}

// NewCursor returns a cursor over reg, resolving relative sources against dataDir.
func NewCursor(reg *Registry, dataDir string) *Cursor {
	return &Cursor{
		registry:    reg,
		dataDir:     dataDir,
		lastChannel: -1,
		now:         time.Now,
	}
}

// Next returns the next sample for channel index, or false when the
// channel is exhausted or the current source has no value.
func (c *Cursor) Next(index int) (ValueSample, bool) {
	s, err := c.NextSample(index)
	return s, err == nil
}

// NextSample is Next with the reason for a missing sample:
// ErrEndOfChannel, ErrSourceUnreadable, ErrNoValue or ErrUnknownChannel.
func (c *Cursor) NextSample(index int) (ValueSample, error) {
	rec, ok := c.registry.Channel(index)
	if !ok {
		return ValueSample{}, fmt.Errorf("%w: %d", ErrUnknownChannel, index)
	}
	total := len(rec.Sources)

	if index != c.lastChannel || c.lastPosition > total {
		c.lastChannel = index
		c.lastPosition = 0
	}

	if c.lastPosition == total {
		c.lastPosition++
		return ValueSample{}, ErrEndOfChannel
	}

	source := rec.Sources[c.lastPosition]
	value, err := ReadValue(ResolvePath(c.dataDir, source))
	if err != nil {
		return ValueSample{}, err
	}

	sample := ValueSample{
		ChannelIndex: index,
		ID:           rec.ID,
		Profile:      rec.Profile,
		SourceName:   source,
		Description:  rec.Description,
		Position:     c.lastPosition,
		Total:        total,
		Value:        value,
		ReadAt:       c.now(),
	}
	c.lastPosition++
	return sample, nil
}

// ResolvePath returns name unchanged when absolute, otherwise joined to dir.
func ResolvePath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// ReadValue returns the value on the first line of path whose leading
// token is a decimal number.
func ReadValue(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 512), maxValueLine)
	for sc.Scan() {
		if v, ok := parseLeadingFloat(sc.Text()); ok {
			return v, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, path, err)
	}
	return 0, fmt.Errorf("%w: %s", ErrNoValue, path)
}

// parseLeadingFloat parses the decimal number at the start of line,
// after optional blanks, ignoring whatever follows it ("21.4 C" -> 21.4).
// Infinities, NaN and hex floats are not accepted.
func parseLeadingFloat(line string) (float64, bool) {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t' || line[i] == '\v' || line[i] == '\f') {
		i++
	}
	start := i

	if i < len(line) && (line[i] == '+' || line[i] == '-') {
		i++
	}
	digits := 0
	for i < len(line) && isDigit(line[i]) {
		i++
		digits++
	}
	if i < len(line) && line[i] == '.' {
		i++
		for i < len(line) && isDigit(line[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}

	// Exponent only counts when digits follow it.
	if i < len(line) && (line[i] == 'e' || line[i] == 'E') {
		j := i + 1
		if j < len(line) && (line[j] == '+' || line[j] == '-') {
			j++
		}
		if j < len(line) && isDigit(line[j]) {
			for j < len(line) && isDigit(line[j]) {
				j++
			}
			i = j
		}
	}

	v, err := strconv.ParseFloat(line[start:i], 64)
	if err != nil { // out of range
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
