package telemetry

import (
	"errors"
	"io"
	"iter"
)

// Stats holds cumulative Reframer counters.
type Stats struct {
	Bytes        int64 // bytes fed
	Records      int64 // samples decoded
	Malformed    int64 // MalformedRecord events; a run of garbage between records counts once
	MissingField int64 // records dropped for a missing or non-numeric key
	Discarded    int64 // buffered bytes thrown away after MalformedRecord
}

// Dropped returns the number of rejected records of either kind.
func (s Stats) Dropped() int64 {
	return s.Malformed + s.MissingField
}

// Reframer accumulates bytes across reads and yields decoded samples in
// arrival order. After every Feed its buffer holds at most one trailing
// partial object. It does no I/O itself and is not safe for concurrent use.
type Reframer struct {
	buf   []byte
	stats Stats
	// inGarbage is set by a malformed discard and cleared by the next
	// complete record, so one corrupt run is one event however it is read.
	inGarbage bool
}

// NewReframer returns an empty Reframer.
func NewReframer() *Reframer {
	return &Reframer{}
}

// Feed appends p to the buffer and returns every sample that is now complete.
// Records rejected along the way are reported through the returned error
// (joined when there are several); the returned samples are valid either way.
//
// A record with a missing field is skipped and decoding resumes after it. A
// malformed record discards the remainder of the buffer. Further discards
// before the next complete record are folded into the same event and are
// not reported again.
func (r *Reframer) Feed(p []byte) ([]Sample, error) {
	r.buf = append(r.buf, p...)
	r.stats.Bytes += int64(len(p))

	var (
		out  []Sample
		errs []error
		off  int
	)
	for off < len(r.buf) {
		samples, n, err := Decode(r.buf[off:])
		out = append(out, samples...)
		off += n
		if len(samples) > 0 {
			r.inGarbage = false
		}
		if err == nil {
			break
		}
		if errors.Is(err, ErrMissingField) {
			errs = append(errs, err)
			r.stats.MissingField++
			r.inGarbage = false
			continue
		}
		if !r.inGarbage {
			errs = append(errs, err)
			r.stats.Malformed++
			r.inGarbage = true
		}
		r.stats.Discarded += int64(len(r.buf) - off)
		off = len(r.buf)
	}

	r.buf = append(r.buf[:0], r.buf[off:]...)
	r.stats.Records += int64(len(out))
	return out, errors.Join(errs...)
}

// Pending returns the number of buffered bytes awaiting completion.
func (r *Reframer) Pending() int {
	return len(r.buf)
}

// Stats returns the cumulative counters.
func (r *Reframer) Stats() Stats {
	return r.stats
}

// Stream returns a lazy sequence of samples read from src in reads of at most
// chunk bytes. Rejected records are yielded as non-nil errors alongside a zero
// Sample and the sequence continues. The sequence ends at io.EOF; any other
// read error is yielded once before it ends.
func (r *Reframer) Stream(src io.Reader, chunk int) iter.Seq2[Sample, error] {
	if chunk <= 0 {
		chunk = DefaultReadChunk
	}
	return func(yield func(Sample, error) bool) {
		buf := make([]byte, chunk)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				samples, ferr := r.Feed(buf[:n])
				for _, s := range samples {
					if !yield(s, nil) {
						return
					}
				}
				if ferr != nil && !yield(Sample{}, ferr) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Sample{}, err)
				}
				return
			}
		}
	}
}

// DefaultReadChunk is the read size used by the reference device server.
const DefaultReadChunk = 1024
