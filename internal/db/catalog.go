package db

import (
	"fmt"
	"slices"
	"time"

	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AxisStats summarises one axis of a closed window.
type AxisStats struct {
	Axis   string  `json:"axis"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// WindowRecord is the catalogue entry of one closed window.
type WindowRecord struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Seq       int         `json:"seq"`
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	Count     int         `json:"count"`
	TimeFirst float64     `json:"time_first"`
	TimeLast  float64     `json:"time_last"`
	LogPath   string      `json:"log_path,omitempty"`
	ImagePath string      `json:"image_path,omitempty"`
	Final     bool        `json:"final"`
	Axes      []AxisStats `json:"axes,omitempty"`
}

// Summarize computes per-axis statistics of w. Empty windows have none.
func Summarize(w *window.Window) []AxisStats {
	if w.Count == 0 {
		return nil
	}
	out := make([]AxisStats, 0, telemetry.NumAxes)
	for _, a := range telemetry.Axes {
		vals := w.Axis(a)
		st := AxisStats{Axis: a.String(), Min: floats.Min(vals), Max: floats.Max(vals)}
		if len(vals) > 1 {
			st.Mean, st.StdDev = stat.MeanStdDev(vals, nil)
		} else {
			st.Mean = vals[0]
		}
		out = append(out, st)
	}
	return out
}

// RecordWindow stores a window and its axis statistics in one transaction.
func (db *DB) RecordWindow(rec WindowRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO windows (
			window_id, session_id, seq, start_unix, end_unix, sample_count,
			time_first, time_last, log_path, image_path, final
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Seq, unixSeconds(rec.Start), unixSeconds(rec.End),
		rec.Count, rec.TimeFirst, rec.TimeLast, rec.LogPath, rec.ImagePath, rec.Final,
	)
	if err != nil {
		return fmt.Errorf("insert window %s: %w", rec.ID, err)
	}
	for _, a := range rec.Axes {
		_, err := tx.Exec(`
			INSERT INTO window_axis_stats (window_id, axis, mean, stddev, min_value, max_value)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, a.Axis, a.Mean, a.StdDev, a.Min, a.Max,
		)
		if err != nil {
			return fmt.Errorf("insert %s stats of window %s: %w", a.Axis, rec.ID, err)
		}
	}
	return tx.Commit()
}

// Windows returns the windows of a session in order, with their statistics.
func (db *DB) Windows(sessionID string) ([]WindowRecord, error) {
	rows, err := db.Query(`
		SELECT window_id, session_id, seq, start_unix, end_unix, sample_count,
			COALESCE(time_first, 0), COALESCE(time_last, 0),
			COALESCE(log_path, ''), COALESCE(image_path, ''), final
		FROM windows WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindowRecord
	index := map[string]int{}
	for rows.Next() {
		var (
			rec        WindowRecord
			start, end float64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &start, &end, &rec.Count,
			&rec.TimeFirst, &rec.TimeLast, &rec.LogPath, &rec.ImagePath, &rec.Final); err != nil {
			return nil, err
		}
		rec.Start, rec.End = fromUnixSeconds(start), fromUnixSeconds(end)
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statRows, err := db.Query(`
		SELECT a.window_id, a.axis, a.mean, a.stddev, a.min_value, a.max_value
		FROM window_axis_stats a JOIN windows w ON w.window_id = a.window_id
		WHERE w.session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer statRows.Close()
	for statRows.Next() {
		var (
			id string
			a  AxisStats
		)
		if err := statRows.Scan(&id, &a.Axis, &a.Mean, &a.StdDev, &a.Min, &a.Max); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].Axes = append(out[i].Axes, a)
		}
	}
	if err := statRows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		sortAxes(out[i].Axes)
	}
	return out, nil
}

func sortAxes(stats []AxisStats) {
	slices.SortFunc(stats, func(a, b AxisStats) int {
		return axisOrder(a.Axis) - axisOrder(b.Axis)
	})
}

func axisOrder(name string) int {
	for i, a := range telemetry.Axes {
		if a.String() == name {
			return i
		}
	}
	return telemetry.NumAxes
}

// Catalog is a window.Sink that records every closed window of one session.
type Catalog struct {
	window.NopSink

	db        *DB
	sessionID string
	clock     timeutil.Clock

	// LogPath and ImagePath name the artifacts of a window by its start
	// time. Nil leaves the column empty.
	LogPath   func(start time.Time) string
	ImagePath func(start time.Time) string
}

// NewCatalog returns a Catalog for the given session.
func NewCatalog(db *DB, sessionID string, clock timeutil.Clock) *Catalog {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Catalog{db: db, sessionID: sessionID, clock: clock}
}

func (c *Catalog) record(w *window.Window, end time.Time, final bool) error {
	rec := WindowRecord{
		ID:        w.ID,
		SessionID: c.sessionID,
		Seq:       w.Seq,
		Start:     w.Start,
		End:       end,
		Count:     w.Count,
		Final:     final,
		Axes:      Summarize(w),
	}
	if w.Count > 0 {
		rec.TimeFirst, rec.TimeLast = w.X[0], w.X[w.Count-1]
	}
	if c.LogPath != nil {
		rec.LogPath = c.LogPath(w.Start)
	}
	if c.ImagePath != nil {
		rec.ImagePath = c.ImagePath(w.Start)
	}
	return c.db.RecordWindow(rec)
}

// OnRotate records the closing window, ending where the next one starts.
func (c *Catalog) OnRotate(closing *window.Window, next time.Time) error {
	return c.record(closing, next, false)
}

// Close records the final window.
func (c *Catalog) Close(final *window.Window) error {
	return c.record(final, c.clock.Now(), true)
}
