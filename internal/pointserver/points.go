package pointserver

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Point is one named value.
type Point struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Value       float64   `json:"value"`
	DeclaredAt  time.Time `json:"declared_at"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`

	// Updates counts publishes since declaration.
	Updates uint64 `json:"updates"`
}

// Table holds the current value of every point.
type Table struct {
	mu       sync.RWMutex
	points   map[string]*Point
	onUpdate func(Point)
	now      func() time.Time
}

// NewTable returns an empty table. onUpdate, if non-nil, is called after
// every successful Publish with a copy of the point.
func NewTable(onUpdate func(Point)) *Table {
	return &Table{
		points:   make(map[string]*Point),
		onUpdate: onUpdate,
		now:      time.Now,
	}
}

// Declare creates a point with an initial value. Declaring an existing
// point updates its description and keeps its value.
func (t *Table) Declare(name, description string, initial float64) error {
	if name == "" {
		return ErrInvalidName
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.points[name]; ok {
		p.Description = description
		return nil
	}
	t.points[name] = &Point{
		Name:        name,
		Description: description,
		Value:       initial,
		DeclaredAt:  t.now().UTC(),
	}
	return nil
}

// Publish sets the value of name, declaring it first if needed.
func (t *Table) Publish(name string, value float64) error {
	if name == "" {
		return ErrInvalidName
	}

	t.mu.Lock()
	now := t.now().UTC()
	p, ok := t.points[name]
	if !ok {
		p = &Point{Name: name, DeclaredAt: now}
		t.points[name] = p
	}
	p.Value = value
	p.UpdatedAt = now
	p.Updates++
	snapshot := *p
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(snapshot)
	}
	return nil
}

// Get returns a copy of the named point.
func (t *Table) Get(name string) (Point, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.points[name]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s", ErrPointNotFound, name)
	}
	return *p, nil
}

// List returns every point sorted by name.
func (t *Table) List() []Point {
	t.mu.RLock()
	out := make([]Point, 0, len(t.points))
	for _, p := range t.points {
		out = append(out, *p)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of points.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}
