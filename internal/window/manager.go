package window

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

var (
	// ErrNotStarted is returned by Process before Start.
	ErrNotStarted = errors.New("window manager not started")
	// ErrClosed is returned by Process after Close.
	ErrClosed = errors.New("window manager closed")
)

// Stats holds cumulative Manager counters.
type Stats struct {
	Samples      int64 // valid samples stored
	Malformed    int64 // records dropped as malformed
	MissingField int64 // records dropped for a missing field
	Rotations    int64
	SinkErrors   int64
	Windows      int // windows opened, including the current one
	Last         telemetry.Sample
}

// Manager tracks the current window of one session. Start, Process, Drop and
// Close must be called from a single goroutine; Snapshot and Stats may be
// called concurrently from observers.
type Manager struct {
	cfg   Config
	sink  Sink
	clock timeutil.Clock

	mu          sync.Mutex
	w           *Window
	dataCount   int64
	armed       bool
	firstWindow bool
	started     bool
	closed      bool
	stats       Stats
}

// NewManager returns a Manager that reports to sink. A nil sink discards all
// events and a nil clock uses the wall clock.
func NewManager(cfg Config, sink Sink, clock timeutil.Clock) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{cfg: cfg, sink: sink, clock: clock, firstWindow: true}, nil
}

// Config returns the thresholds the Manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start opens the first window. It is a no-op if already started.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	start := m.clock.Now()
	m.w = newWindow(0, start, m.cfg.Size)
	m.started = true
	m.stats.Windows = 1
	w := m.w
	m.mu.Unlock()

	if err := m.sink.Open(start, w); err != nil {
		m.sinkError()
		return fmt.Errorf("open window %s: %w", w.ID, err)
	}
	return nil
}

// Process stores one valid sample in the current window, notifies the sink
// and rotates the window when the cycle wraps. Sink errors are returned but
// never leave the window inconsistent; processing continues regardless.
func (m *Manager) Process(s telemetry.Sample) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.started:
		m.mu.Unlock()
		return ErrNotStarted
	}
	w := m.w
	m.mu.Unlock()

	var errs []error
	if err := m.sink.Record(s); err != nil {
		errs = append(errs, fmt.Errorf("record sample: %w", err))
	}

	m.mu.Lock()
	w.X = append(w.X, s.S*m.cfg.SampleRate)
	for _, a := range telemetry.Axes {
		v := s.Value(a)
		if a.IsGyro() {
			v /= m.cfg.GyroScale
		}
		w.Axes[a] = append(w.Axes[a], v)
	}
	w.Count++
	m.dataCount++
	m.stats.Samples++
	m.stats.Last = s

	phase := int(m.dataCount % int64(m.cfg.Size))
	switch {
	case phase > m.cfg.ArmAt:
		m.armed = true
		m.firstWindow = false
		w.Phase = Armed
	case phase < m.cfg.RotateBelow && m.armed && !m.firstWindow:
		w.Phase = Rotating
	}
	m.mu.Unlock()

	if err := m.sink.OnSample(s, w); err != nil {
		errs = append(errs, fmt.Errorf("sample event: %w", err))
	}
	if w.Phase == Rotating {
		if err := m.rotate(w); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		m.sinkError()
	}
	return errors.Join(errs...)
}

func (m *Manager) rotate(closing *Window) error {
	next := m.clock.Now()
	err := m.sink.OnRotate(closing, next)

	m.mu.Lock()
	m.w = newWindow(closing.Seq+1, next, m.cfg.Size)
	m.armed = false
	m.stats.Rotations++
	m.stats.Windows++
	m.mu.Unlock()

	monitoring.Debugf("window %d rotated after %d samples", closing.Seq, closing.Count)
	if err != nil {
		return fmt.Errorf("rotate window %s: %w", closing.ID, err)
	}
	return nil
}

// Drop accounts for a rejected record. The sample counter and the window
// buffers are left untouched.
func (m *Manager) Drop(err error) {
	m.mu.Lock()
	if errors.Is(err, telemetry.ErrMissingField) {
		m.stats.MissingField++
	} else {
		m.stats.Malformed++
	}
	m.mu.Unlock()
	monitoring.Logf("dropped record: %v", err)
}

// Close flushes the current window through the sink. Later calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed || !m.started {
		m.closed = true
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	w := m.w
	m.mu.Unlock()

	if err := m.sink.Close(w); err != nil {
		m.sinkError()
		return fmt.Errorf("close window %s: %w", w.ID, err)
	}
	return nil
}

// Window returns the live current window, or nil before Start. It must only
// be used from the processing goroutine.
func (m *Manager) Window() *Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.w
}

// Snapshot returns a copy of the current window, or nil before Start.
func (m *Manager) Snapshot() *Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.w == nil {
		return nil
	}
	return m.w.Snapshot()
}

// Stats returns the cumulative counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) sinkError() {
	m.mu.Lock()
	m.stats.SinkErrors++
	m.mu.Unlock()
}
