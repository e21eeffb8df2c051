package window

import (
	"errors"
	"time"

	"github.com/banshee-data/motion.report/internal/telemetry"
)

// Sink receives window events from a Manager. Calls are made from the
// Manager's goroutine, one at a time and in sample order. A Sink must not
// retain the *Window it is handed past the call; take a Snapshot instead.
type Sink interface {
	// Open is called once when the first window of a session starts.
	Open(start time.Time, w *Window) error
	// Record is called with each valid sample before it is stored.
	Record(s telemetry.Sample) error
	// OnSample is called after s has been stored in w.
	OnSample(s telemetry.Sample, w *Window) error
	// OnRotate closes the outgoing window and prepares for one starting at
	// next. No sample of the next window is delivered until it returns.
	OnRotate(closing *Window, next time.Time) error
	// Close flushes the final, possibly partial, window.
	Close(final *Window) error
}

// NopSink ignores every event. Embed it to implement only part of Sink.
type NopSink struct{}

func (NopSink) Open(time.Time, *Window) error { return nil }
func (NopSink) Record(telemetry.Sample) error { return nil }
func (NopSink) OnSample(telemetry.Sample, *Window) error { return nil }
func (NopSink) OnRotate(*Window, time.Time) error { return nil }
func (NopSink) Close(*Window) error { return nil }

// multiSink fans events out to several sinks.
type multiSink []Sink

// Multi returns a Sink that forwards every event to each of sinks in order.
// Every sink sees every event; their errors are joined.
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) each(f func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := f(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiSink) Open(start time.Time, w *Window) error {
	return m.each(func(s Sink) error { return s.Open(start, w) })
}

func (m multiSink) Record(smp telemetry.Sample) error {
	return m.each(func(s Sink) error { return s.Record(smp) })
}

func (m multiSink) OnSample(smp telemetry.Sample, w *Window) error {
	return m.each(func(s Sink) error { return s.OnSample(smp, w) })
}

func (m multiSink) OnRotate(closing *Window, next time.Time) error {
	return m.each(func(s Sink) error { return s.OnRotate(closing, next) })
}

func (m multiSink) Close(final *Window) error {
	return m.each(func(s Sink) error { return s.Close(final) })
}
