package enocean

import "errors"

// Domain errors for the EnOcean bridge package.
var (
	// ErrConfigOpen is returned when the control file cannot be opened.
	ErrConfigOpen = errors.New("enocean: cannot open control file")

	// ErrMalformedLine is returned for a control-file line missing a required field.
	ErrMalformedLine = errors.New("enocean: malformed control line")

	// ErrBlankLine marks an empty or comment-only control-file line.
	ErrBlankLine = errors.New("enocean: blank line")

	// ErrUnknownChannel is returned for a channel index outside the registry.
	ErrUnknownChannel = errors.New("enocean: unknown channel")

	// ErrEndOfChannel is returned by the cursor once every source has been read.
	ErrEndOfChannel = errors.New("enocean: end of channel")

	// ErrSourceUnreadable is returned when a value file cannot be opened or read.
	ErrSourceUnreadable = errors.New("enocean: source unreadable")

	// ErrNoValue is returned when a value file has no line with a numeric leading token.
	ErrNoValue = errors.New("enocean: no numeric value")

	// ErrInvalidNotification is returned for a notification payload that is not a channel index.
	ErrInvalidNotification = errors.New("enocean: invalid notification")
)
