// Package ingest connects telemetry sources to the window pipeline: a TCP
// listener serving one producer at a time, plus serial and capture replay
// sources that feed the same per-connection Session.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/window"
)

// End reasons recorded for a session.
const (
	EndEOF         = "eof"
	EndInterrupted = "interrupted"
	EndError       = "error"
)

// Result summarises a finished session.
type Result struct {
	Reason  string
	Frames  telemetry.Stats
	Windows window.Stats
	// Pending is the size of the incomplete record left when the stream ended.
	Pending int
}

// Session is the per-connection pipeline: a fresh Reframer feeding a fresh
// Manager. Nothing is shared between sessions.
type Session struct {
	ID     string
	Remote string

	reframer     *telemetry.Reframer
	manager      *window.Manager
	readChunk    int
	pollInterval time.Duration
}

// NewSession builds a Session whose windows are reported to sink.
func NewSession(id, remote string, cfg window.Config, sink window.Sink, clock timeutil.Clock) (*Session, error) {
	m, err := window.NewManager(cfg, sink, clock)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:           id,
		Remote:       remote,
		reframer:     telemetry.NewReframer(),
		manager:      m,
		readChunk:    telemetry.DefaultReadChunk,
		pollInterval: DefaultPollInterval,
	}, nil
}

// SetReadChunk sets the maximum size of a single read.
func (s *Session) SetReadChunk(n int) {
	if n > 0 {
		s.readChunk = n
	}
}

// SetPollInterval sets how often a blocked read checks for cancellation.
func (s *Session) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Manager returns the session's window manager.
func (s *Session) Manager() *window.Manager {
	return s.manager
}

// Run reads r until EOF, cancellation or a failure, feeding every decoded
// sample to the window manager. Rejected records are counted and skipped. The
// final window is always closed, so its log is flushed and its image written
// even when the session ends early.
//
// EOF and cancellation end the session cleanly with a nil error. A read or
// sink failure ends it with that error.
func (s *Session) Run(ctx context.Context, r io.Reader) (Result, error) {
	res := Result{Reason: EndEOF}
	if err := s.manager.Start(); err != nil {
		s.manager.Close()
		return s.result(EndError), fmt.Errorf("session %s: %w", s.ID, err)
	}

	var runErr error
	src := newPollReader(ctx, r, s.pollInterval)
	for sample, err := range s.reframer.Stream(src, s.readChunk) {
		if err != nil {
			if recs := telemetry.RecordErrors(err); len(recs) > 0 {
				for _, re := range recs {
					s.manager.Drop(re)
				}
				continue
			}
			runErr = err
			break
		}
		if err := s.manager.Process(sample); err != nil {
			runErr = err
			break
		}
	}

	if n := s.reframer.Pending(); n > 0 {
		monitoring.Logf("session %s: dropping %d bytes of incomplete record at end of stream", s.ID, n)
	}

	switch {
	case ctx.Err() != nil:
		res.Reason = EndInterrupted
		runErr = nil
	case runErr != nil:
		res.Reason = EndError
	}

	if err := s.manager.Close(); err != nil && runErr == nil {
		runErr = err
		res.Reason = EndError
	}
	res = s.result(res.Reason)
	if runErr != nil {
		return res, fmt.Errorf("session %s: %w", s.ID, runErr)
	}
	return res, nil
}

func (s *Session) result(reason string) Result {
	return Result{
		Reason:  reason,
		Frames:  s.reframer.Stats(),
		Windows: s.manager.Stats(),
		Pending: s.reframer.Pending(),
	}
}

// errorCount is the cumulative number of malformed records, as reported on
// interrupt.
func (r Result) errorCount() int64 {
	return r.Windows.Malformed
}
