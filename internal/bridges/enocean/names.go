package enocean

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxNameLength is the buffer size point names must fit into,
	// terminator included.
	DefaultMaxNameLength = 128

	// MaxSummaryLength bounds the per-cycle summary log line.
	MaxSummaryLength = 2047

	summaryPrefix = "enoceancallback: "
)

// PointName joins prefix and source into a point name of at most
// maxLen-1 bytes. The prefix is never shortened; the source is cut on a
// rune boundary to fit. A prefix that already fills the budget yields the
// prefix alone.
func PointName(prefix, source string, maxLen int) string {
	room := maxLen - len(prefix) - 1
	if room <= 0 {
		return prefix
	}
	return prefix + truncateUTF8(source, room)
}

// truncateUTF8 returns the longest prefix of s of at most n bytes that
// does not split a multi-byte rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// summary accumulates "name=value " pairs for the cycle log line,
// silently dropping whatever does not fit in MaxSummaryLength.
type summary struct {
	b strings.Builder
}

func newSummary() *summary {
	s := &summary{}
	s.b.WriteString(summaryPrefix)
	return s
}

func (s *summary) add(name string, value float64) {
	item := name + "=" + strconv.FormatFloat(value, 'g', -1, 64) + " "
	room := MaxSummaryLength - s.b.Len()
	if room <= 0 {
		return
	}
	s.b.WriteString(truncateUTF8(item, room))
}

func (s *summary) String() string {
	return s.b.String()
}
