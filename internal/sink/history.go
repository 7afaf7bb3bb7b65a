package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
)

// timeLayout is fixed-width so recorded_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrHistoryStopped is returned when writing after Stop or before Start.
var ErrHistoryStopped = errors.New("sink: history not running")

// HistoryRow is one recorded sample.
type HistoryRow struct {
	ID         int64     `json:"id"`
	Point      string    `json:"point"`
	EnOceanID  string    `json:"enocean_id,omitempty"`
	Profile    string    `json:"profile,omitempty"`
	Source     string    `json:"source,omitempty"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistorySink appends every sample to point_history and mirrors the
// channel registry into channels. The tables come from the embedded
// migrations.
//
// Thread Safety: All methods are safe for concurrent use.
type HistorySink struct {
	db *sql.DB

	insertStmt *sql.Stmt
	stmtMu     sync.Mutex
}

// NewHistorySink creates a sink on db. Call Start before publishing.
func NewHistorySink(db *sql.DB) *HistorySink {
	return &HistorySink{db: db}
}

// Start prepares the insert statement.
func (h *HistorySink) Start() error {
	h.stmtMu.Lock()
	defer h.stmtMu.Unlock()

	if h.insertStmt != nil {
		return nil
	}

	stmt, err := h.db.Prepare(`
		INSERT INTO point_history (point, enocean_id, profile, source, value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	h.insertStmt = stmt
	return nil
}

// Stop releases the prepared statement. Later writes return ErrHistoryStopped.
func (h *HistorySink) Stop() {
	h.stmtMu.Lock()
	defer h.stmtMu.Unlock()

	if h.insertStmt != nil {
		h.insertStmt.Close()
		h.insertStmt = nil
	}
}

// Publish implements enocean.Publisher.
func (h *HistorySink) Publish(name string, value float64) error {
	return h.insert(name, "", "", "", value, time.Now())
}

// PublishSample implements enocean.SamplePublisher.
func (h *HistorySink) PublishSample(name string, s enocean.ValueSample) error {
	ts := s.ReadAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return h.insert(name, enocean.FormatID(s.ID), s.Profile, s.SourceName, s.Value, ts)
}

func (h *HistorySink) insert(point, id, profile, source string, value float64, at time.Time) error {
	// Held across Exec so Stop cannot close the statement mid-use.
	h.stmtMu.Lock()
	defer h.stmtMu.Unlock()

	if h.insertStmt == nil {
		return ErrHistoryStopped
	}
	if _, err := h.insertStmt.Exec(point, id, profile, source, value, at.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("recording %s: %w", point, err)
	}
	return nil
}

// StoreChannels replaces the channels table with records.
// Implements enocean.ChannelStore.
func (h *HistorySink) StoreChannels(ctx context.Context, records []enocean.ChannelRecord) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning channel store: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return fmt.Errorf("clearing channels: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	for i, rec := range records {
		sources, err := json.Marshal(rec.Sources)
		if err != nil {
			return fmt.Errorf("encoding sources of channel %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (channel_index, enocean_id, profile, description, sources, loaded_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, i, rec.IDString(), rec.Profile, rec.Description, string(sources), now); err != nil {
			return fmt.Errorf("storing channel %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing channels: %w", err)
	}
	return nil
}

// Channels reads back the stored registry in index order.
func (h *HistorySink) Channels(ctx context.Context) ([]enocean.ChannelRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT enocean_id, profile, description, sources FROM channels ORDER BY channel_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []enocean.ChannelRecord
	for rows.Next() {
		var id, profile, description, sources string
		if err := rows.Scan(&id, &profile, &description, &sources); err != nil {
			return nil, err
		}
		rec := enocean.ChannelRecord{Profile: profile, Description: description}
		v, err := strconv.ParseUint(id, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing stored id %q: %w", id, err)
		}
		rec.ID = uint32(v)
		if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
			return nil, fmt.Errorf("parsing stored sources: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Recent returns up to limit samples for point, newest first.
func (h *HistorySink) Recent(ctx context.Context, point string, limit int) ([]HistoryRow, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, point, enocean_id, profile, source, value, recorded_at
		FROM point_history
		WHERE point = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, point, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var recorded string
		if err := rows.Scan(&r.ID, &r.Point, &r.EnOceanID, &r.Profile, &r.Source, &r.Value, &recorded); err != nil {
			return nil, err
		}
		if r.RecordedAt, err = time.Parse(timeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parsing recorded_at %q: %w", recorded, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes samples recorded before cutoff and returns how many went.
func (h *HistorySink) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM point_history WHERE recorded_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}
