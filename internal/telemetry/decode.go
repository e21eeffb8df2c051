package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrMalformedRecord reports bytes that can never become a valid JSON
	// object no matter what is appended to them.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMissingField reports a complete JSON object that lacks a required
	// key or carries a non-numeric value for one.
	ErrMissingField = errors.New("missing field")
)

// RecordError describes why decoding stopped at Offset.
type RecordError struct {
	// Kind is ErrMalformedRecord or ErrMissingField.
	Kind error
	// Offset is the byte offset of the rejected record in the decoded buffer.
	Offset int
	// Field is the offending key for ErrMissingField.
	Field string
	// Err is the underlying parser error, if any.
	Err error
}

func (e *RecordError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%v %q at offset %d: %v", e.Kind, e.Field, e.Offset, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%v %q at offset %d", e.Kind, e.Field, e.Offset)
	case e.Err != nil:
		return fmt.Sprintf("%v at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("%v at offset %d", e.Kind, e.Offset)
}

func (e *RecordError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Decode decodes every complete sample at the front of buf. It returns the
// samples in order and the number of bytes they occupy. A trailing incomplete
// object is not an error: it is left out of consumed so the caller can retain
// it until more bytes arrive.
//
// Decoding stops at the first rejected record. For ErrMissingField, consumed
// includes the rejected object so the caller may resume right after it. For
// ErrMalformedRecord, consumed stops where the bad bytes begin.
func Decode(buf []byte) ([]Sample, int, error) {
	var samples []Sample
	dec := json.NewDecoder(bytes.NewReader(buf))
	consumed := 0

	for consumed < len(buf) {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// empty, whitespace only, or an incomplete trailing frame
				return samples, consumed, nil
			}
			return samples, consumed, &RecordError{Kind: ErrMalformedRecord, Offset: consumed, Err: err}
		}
		if len(raw) == 0 || raw[0] != '{' {
			return samples, consumed, &RecordError{
				Kind:   ErrMalformedRecord,
				Offset: consumed,
				Err:    fmt.Errorf("expected JSON object, got %.16q", raw),
			}
		}

		start := consumed
		consumed = int(dec.InputOffset())

		var w wireSample
		if err := json.Unmarshal(raw, &w); err != nil {
			re := &RecordError{Kind: ErrMissingField, Offset: start, Err: err}
			var ute *json.UnmarshalTypeError
			if errors.As(err, &ute) {
				re.Field = ute.Field
			}
			return samples, consumed, re
		}
		s, missing := w.sample()
		if missing != "" {
			return samples, consumed, &RecordError{Kind: ErrMissingField, Offset: start, Field: missing}
		}
		samples = append(samples, s)
	}
	return samples, consumed, nil
}

// RecordErrors flattens err, as returned by Reframer.Feed, into the individual
// record rejections it carries.
func RecordErrors(err error) []*RecordError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RecordError); ok {
		return []*RecordError{re}
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		var re *RecordError
		if errors.As(err, &re) {
			return []*RecordError{re}
		}
		return nil
	}
	var out []*RecordError
	for _, e := range joined.Unwrap() {
		out = append(out, RecordErrors(e)...)
	}
	return out
}
