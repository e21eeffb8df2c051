// Package window groups decoded samples into rotating session windows and
// drives the sinks that persist them.
package window

import (
	"fmt"
	"time"

	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/google/uuid"
)

// Phase is the rotation state of a Window.
type Phase int

const (
	// Filling is the phase of a fresh window before the arming region.
	Filling Phase = iota
	// Armed means the counter has passed the arming threshold this cycle.
	Armed
	// Rotating marks the sample that closes the window.
	Rotating
)

func (p Phase) String() string {
	switch p {
	case Filling:
		return "filling"
	case Armed:
		return "armed"
	case Rotating:
		return "rotating"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Window is the state accumulated for one rotation epoch. X and every entry
// of Axes always have length Count.
type Window struct {
	ID    string
	Seq   int
	Start time.Time
	Count int
	X     []float64
	Axes  [telemetry.NumAxes][]float64
	Phase Phase
}

func newWindow(seq int, start time.Time, capacity int) *Window {
	w := &Window{
		ID:    uuid.New().String(),
		Seq:   seq,
		Start: start,
		X:     make([]float64, 0, capacity),
	}
	for i := range w.Axes {
		w.Axes[i] = make([]float64, 0, capacity)
	}
	return w
}

// Axis returns the stored values for axis a. Gyro values are already scaled.
func (w *Window) Axis(a telemetry.Axis) []float64 {
	return w.Axes[a]
}

// Last returns the most recent stored point, or false if the window is empty.
func (w *Window) Last() (x float64, vals [telemetry.NumAxes]float64, ok bool) {
	if w.Count == 0 {
		return 0, vals, false
	}
	i := w.Count - 1
	for a := range w.Axes {
		vals[a] = w.Axes[a][i]
	}
	return w.X[i], vals, true
}

// Snapshot returns a deep copy of w that is safe to retain and to read from
// another goroutine.
func (w *Window) Snapshot() *Window {
	c := *w
	c.X = append([]float64(nil), w.X...)
	for i := range w.Axes {
		c.Axes[i] = append([]float64(nil), w.Axes[i]...)
	}
	return &c
}

// Check verifies that all buffers have length Count.
func (w *Window) Check() error {
	if len(w.X) != w.Count {
		return fmt.Errorf("window %d: x has %d points, count is %d", w.Seq, len(w.X), w.Count)
	}
	for i, vals := range w.Axes {
		if len(vals) != w.Count {
			return fmt.Errorf("window %d: %s has %d points, count is %d", w.Seq, telemetry.Axis(i), len(vals), w.Count)
		}
	}
	return nil
}
