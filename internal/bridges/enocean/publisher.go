package enocean

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Publisher makes a named value visible to clients.
// Implementations must be safe for concurrent use when the scanner runs
// more than one worker.
type Publisher interface {
	Publish(name string, value float64) error
}

// SamplePublisher is implemented by publishers that want the full sample
// (id, profile, source, timestamp) rather than just the value. The scanner
// prefers it when available.
type SamplePublisher interface {
	PublishSample(name string, sample ValueSample) error
}

// PointDeclarer registers points before their first value arrives.
type PointDeclarer interface {
	Declare(name, description string, initial float64) error
}

// TaskScheduler runs fn every interval until the scheduler is closed.
// Invocations of one task never overlap.
type TaskScheduler interface {
	RegisterPeriodicTask(interval time.Duration, fn func(ctx context.Context)) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(name string, value float64) error

// Publish calls f.
func (f PublisherFunc) Publish(name string, value float64) error {
	return f(name, value)
}

// FanOut publishes to every target in order and joins their errors.
// A failing target does not stop the others.
type FanOut []Publisher

// Publish implements Publisher.
func (f FanOut) Publish(name string, value float64) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(name, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishSample implements SamplePublisher, passing the sample on to
// targets that accept it.
func (f FanOut) PublishSample(name string, sample ValueSample) error {
	var errs []error
	for _, p := range f {
		if err := publishOne(p, name, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishOne prefers PublishSample when p implements it.
func publishOne(p Publisher, name string, sample ValueSample) error {
	if sp, ok := p.(SamplePublisher); ok {
		if err := sp.PublishSample(name, sample); err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		return nil
	}
	if err := p.Publish(name, sample.Value); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}
