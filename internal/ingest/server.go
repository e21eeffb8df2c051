package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/monitor"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/plotter"
	"github.com/banshee-data/motion.report/internal/recorder"
	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/window"
	"github.com/google/uuid"
)

// Options configures a Server.
type Options struct {
	// Addr is the TCP listen address, host:port.
	Addr string
	// Window holds the rotation thresholds.
	Window window.Config
	// ReadChunk is the maximum size of a single read.
	ReadChunk int
	// PollInterval bounds how long a read blocks before cancellation is
	// checked.
	PollInterval time.Duration

	// OutputDir receives data/ and image/.
	OutputDir string
	// AsyncRender renders images on a worker.
	AsyncRender bool
	// DisableImages skips PNG rendering.
	DisableImages bool

	// FS defaults to the OS filesystem; Clock to the wall clock.
	FS    fsutil.FileSystem
	Clock timeutil.Clock

	// DB, when set, catalogues sessions and windows.
	DB *db.DB
	// Hub, when set, receives live window state.
	Hub *monitor.Hub
}

// SessionStats is the live view of the running session, as published on the
// debug page.
type SessionStats struct {
	ID      string       `json:"id"`
	Remote  string       `json:"remote"`
	Started time.Time    `json:"started"`
	Windows window.Stats `json:"windows"`
}

// Server accepts producer connections one at a time and runs a Session for
// each.
type Server struct {
	opts Options

	mu       sync.Mutex
	ln       net.Listener
	current  *Session
	started  time.Time
	sessions int
}

// NewServer returns a Server using opts.
func NewServer(opts Options) *Server {
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.ReadChunk <= 0 {
		opts.ReadChunk = telemetry.DefaultReadChunk
	}
	s := &Server{opts: opts}
	if opts.Hub != nil {
		opts.Hub.SetStatsFunc(func() any { return s.Stats() })
	}
	return s
}

// ListenAndServe listens on Options.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln sequentially. A new producer is only
// accepted after the previous session has ended. Serve closes ln and returns
// nil once ctx is done; session failures are logged and do not stop it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	monitoring.Logf("listening for telemetry on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		remote := conn.RemoteAddr().String()
		monitoring.Logf("connection from %s", remote)
		if err := s.ServeReader(ctx, remote, conn); err != nil {
			monitoring.Logf("session from %s failed: %v", remote, err)
		}
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ServeReader runs one session over r with a fresh set of sinks.
func (s *Server) ServeReader(ctx context.Context, remote string, r io.Reader) error {
	id := uuid.NewString()
	started := s.opts.Clock.Now()

	if s.opts.DB != nil {
		if err := s.opts.DB.StartSession(id, remote, started); err != nil {
			return err
		}
	}

	sess, err := NewSession(id, remote, s.opts.Window, s.sink(id), s.opts.Clock)
	if err != nil {
		return err
	}
	sess.SetReadChunk(s.opts.ReadChunk)
	sess.SetPollInterval(s.opts.PollInterval)

	s.mu.Lock()
	s.current = sess
	s.started = started
	s.sessions++
	s.mu.Unlock()

	res, runErr := sess.Run(ctx, r)

	switch res.Reason {
	case EndInterrupted:
		monitoring.Logf("session %s interrupted: samples=%d rotations=%d error_count=%d",
			id, res.Windows.Samples, res.Windows.Rotations, res.errorCount())
	default:
		monitoring.Logf("session %s ended (%s): samples=%d rotations=%d malformed=%d missing_field=%d",
			id, res.Reason, res.Windows.Samples, res.Windows.Rotations,
			res.Windows.Malformed, res.Windows.MissingField)
	}

	if s.opts.DB != nil {
		totals := db.SessionTotals{
			Bytes:        res.Frames.Bytes,
			Samples:      res.Windows.Samples,
			Malformed:    res.Windows.Malformed,
			MissingField: res.Windows.MissingField,
			Rotations:    res.Windows.Rotations,
		}
		if err := s.opts.DB.EndSession(id, s.opts.Clock.Now(), totals, res.Reason); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// sink assembles the per-session sinks. Order matters only for Close: the
// log is flushed before the final image renders.
func (s *Server) sink(sessionID string) window.Sink {
	out := s.opts.OutputDir
	sinks := []window.Sink{recorder.NewLogSink(s.opts.FS, out)}

	var imagePath func(time.Time) string
	if !s.opts.DisableImages {
		sinks = append(sinks, plotter.NewImageSink(s.opts.FS, out, s.opts.AsyncRender))
		imagePath = func(start time.Time) string { return plotter.ImagePath(out, start) }
	}
	if s.opts.Hub != nil {
		sinks = append(sinks, monitor.NewLive(s.opts.Hub))
	}
	if s.opts.DB != nil {
		cat := db.NewCatalog(s.opts.DB, sessionID, s.opts.Clock)
		cat.LogPath = func(start time.Time) string { return recorder.DataPath(out, start) }
		cat.ImagePath = imagePath
		sinks = append(sinks, cat)
	}
	return window.Multi(sinks...)
}

// Sessions returns the number of sessions served so far.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Stats returns the live counters of the current or most recent session.
func (s *Server) Stats() *SessionStats {
	s.mu.Lock()
	sess, started := s.current, s.started
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return &SessionStats{
		ID:      sess.ID,
		Remote:  sess.Remote,
		Started: started,
		Windows: sess.Manager().Stats(),
	}
}
