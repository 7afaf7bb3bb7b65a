package enocean

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Load reads the control file at path into a Registry.
//
// Malformed lines are skipped with a warning. Loading stops with an overflow
// warning once MaxChannels records have been accepted and another valid line
// follows. A file with no valid lines yields an empty registry, not an error.
//
// Parameters:
//   - path: Control file path
//   - logger: Receives skip and overflow warnings (may be nil)
//
// Returns:
//   - *Registry: Accepted records in file order
//   - int: Number of accepted records
//   - error: ErrConfigOpen if the file cannot be opened or read
func Load(path string, logger Logger) (*Registry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrConfigOpen, err)
	}
	defer f.Close()

	reg, err := Parse(f, logger)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrConfigOpen, path, err)
	}
	return reg, reg.Len(), nil
}

// Parse reads control lines from r. See Load.
func Parse(r io.Reader, logger Logger) (*Registry, error) {
	br := bufio.NewReader(r)
	var records []ChannelRecord
	lineNo := 0

	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			lineNo++
			rec, ok := acceptLine(line, lineNo, logger)
			if ok && len(records) >= MaxChannels {
				logWarn(logger, "channel table overflow, ignoring remaining lines",
					"line", lineNo, "max_channels", MaxChannels)
				break
			}
			if ok {
				records = append(records, rec)
			}
		}

		// A failed read also fails a partial last line, so nothing half-read is kept.
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading line %d: %w", lineNo, readErr)
		}
	}

	return NewRegistry(records), nil
}

// acceptLine decodes one line, logging warnings and skipped lines.
func acceptLine(line string, lineNo int, logger Logger) (ChannelRecord, bool) {
	rec, warnings, err := decodeLine(line)
	for _, w := range warnings {
		logWarn(logger, "control line warning", "line", lineNo, "warning", w)
	}
	switch {
	case errors.Is(err, ErrBlankLine):
		return ChannelRecord{}, false
	case err != nil:
		logWarn(logger, "skipping control line", "line", lineNo, "error", err)
		return ChannelRecord{}, false
	}
	return rec, true
}

// lineScanner walks one control line. A field ends at ',' or a terminator.
type lineScanner struct {
	s   string
	pos int
}

func isTerminator(c byte) bool {
	return c == '\n' || c == '\r' || c == 0 || c == '#'
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func (l *lineScanner) skipBlanks() {
	for l.pos < len(l.s) && isBlank(l.s[l.pos]) {
		l.pos++
	}
}

// atEnd reports whether the line has terminated at the current position.
func (l *lineScanner) atEnd() bool {
	return l.pos >= len(l.s) || isTerminator(l.s[l.pos])
}

// field returns the next field with trailing blanks removed, and whether a
// comma followed it (the comma is consumed).
func (l *lineScanner) field() (string, bool) {
	start := l.pos
	for l.pos < len(l.s) && l.s[l.pos] != ',' && !isTerminator(l.s[l.pos]) {
		l.pos++
	}
	value := strings.TrimRight(l.s[start:l.pos], " \t")
	if l.pos < len(l.s) && l.s[l.pos] == ',' {
		l.pos++
		return value, true
	}
	return value, false
}

// requiredField reads a field that must be non-empty and must be followed
// by a comma and a further non-empty field.
func (l *lineScanner) requiredField(name, next string) (string, error) {
	value, comma := l.field()
	if value == "" {
		return "", fmt.Errorf("%w: empty %s", ErrMalformedLine, name)
	}
	if !comma {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedLine, next)
	}
	l.skipBlanks()
	if l.atEnd() || l.s[l.pos] == ',' {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedLine, next)
	}
	return value, nil
}

// decodeLine parses "id, profile, description, source [, source ...]".
// Warnings describe dropped sources on an otherwise valid line.
func decodeLine(line string) (ChannelRecord, []string, error) {
	l := &lineScanner{s: line}
	l.skipBlanks()
	if l.atEnd() {
		return ChannelRecord{}, nil, ErrBlankLine
	}

	idText, err := l.requiredField("id", "profile")
	if err != nil {
		return ChannelRecord{}, nil, err
	}
	id, err := parseHexID(idText)
	if err != nil {
		return ChannelRecord{}, nil, err
	}

	profile, err := l.requiredField("profile", "description")
	if err != nil {
		return ChannelRecord{}, nil, err
	}
	description, err := l.requiredField("description", "source")
	if err != nil {
		return ChannelRecord{}, nil, err
	}

	rec := ChannelRecord{ID: id, Profile: profile, Description: description}
	var warnings []string
	dropped := 0

	for {
		source, comma := l.field()
		switch {
		case source == "":
			warnings = append(warnings, "empty source skipped")
		case len(rec.Sources) < MaxSources:
			rec.Sources = append(rec.Sources, source)
		default:
			dropped++
		}
		if !comma {
			break
		}
		l.skipBlanks()
		if l.atEnd() {
			break
		}
	}

	if dropped > 0 {
		warnings = append(warnings,
			fmt.Sprintf("%d sources beyond the limit of %d dropped", dropped, MaxSources))
	}
	if len(rec.Sources) == 0 {
		return ChannelRecord{}, warnings, fmt.Errorf("%w: no sources", ErrMalformedLine)
	}
	return rec, warnings, nil
}

// parseHexID parses a 32-bit hex id with an optional 0x prefix.
func parseHexID(s string) (uint32, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not a 32-bit hex number", ErrMalformedLine, s)
	}
	return uint32(v), nil
}
