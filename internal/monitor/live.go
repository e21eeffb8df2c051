package monitor

import (
	"bytes"
	"time"

	"github.com/banshee-data/motion.report/internal/telemetry"
	"github.com/banshee-data/motion.report/internal/window"
)

// Live is a window.Sink that keeps a Hub up to date.
type Live struct {
	window.NopSink
	hub *Hub
}

// NewLive returns a Live sink publishing to hub.
func NewLive(hub *Hub) *Live {
	return &Live{hub: hub}
}

func (l *Live) Open(_ time.Time, w *window.Window) error {
	l.hub.SetWindow(w.Snapshot())
	return nil
}

// OnSample publishes the sample to tail subscribers and refreshes the
// current window snapshot.
func (l *Live) OnSample(s telemetry.Sample, w *window.Window) error {
	line, err := s.Line()
	if err != nil {
		return err
	}
	l.hub.Publish(string(bytes.TrimSuffix(line, []byte("\n"))))
	l.hub.SetWindow(w.Snapshot())
	return nil
}

func (l *Live) OnRotate(closing *window.Window, _ time.Time) error {
	l.hub.SetLastClosed(closing.Snapshot())
	return nil
}

func (l *Live) Close(final *window.Window) error {
	l.hub.SetWindow(final.Snapshot())
	return nil
}
