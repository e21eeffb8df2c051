package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// DefaultPollInterval bounds how long a single read may block before the
// context is checked again.
const DefaultPollInterval = 100 * time.Millisecond

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

type timeoutReader interface {
	SetReadTimeout(t time.Duration) error
}

// pollReader makes a blocking source observe ctx. Network connections get a
// read deadline of one poll interval per read; serial ports get a read
// timeout. Timeouts are retried until ctx is done.
type pollReader struct {
	ctx  context.Context
	r    io.Reader
	poll time.Duration
}

func newPollReader(ctx context.Context, r io.Reader, poll time.Duration) *pollReader {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if tr, ok := r.(timeoutReader); ok {
		_ = tr.SetReadTimeout(poll)
	}
	return &pollReader{ctx: ctx, r: r, poll: poll}
}

func (p *pollReader) Read(b []byte) (int, error) {
	for {
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
		if dr, ok := p.r.(deadlineReader); ok {
			if err := dr.SetReadDeadline(time.Now().Add(p.poll)); err != nil {
				return 0, err
			}
		}
		n, err := p.r.Read(b)
		if isTimeout(err) {
			if n > 0 {
				return n, nil
			}
			continue
		}
		// serial ports report a read timeout as (0, nil)
		if n == 0 && err == nil {
			continue
		}
		return n, err
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
