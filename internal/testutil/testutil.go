// Package testutil provides shared test utilities and fixtures.
//
// The fixtures reproduce the firmware's wire format exactly: accelerometer
// values as integers, gyro values with two decimals, and the sequence index
// last, with no separator between records.
package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// DeviceRecord formats one record the way the sensor firmware does.
func DeviceRecord(s, ax, ay, az int, gx, gy, gz float64) string {
	return fmt.Sprintf(`{"a_x":%d,"a_y":%d,"a_z":%d,"g_x":%.2f,"g_y":%.2f,"g_z":%.2f,"s":%d}`,
		ax, ay, az, gx, gy, gz, s)
}

// Record returns a deterministic device record for sequence index s.
func Record(s int) string {
	return DeviceRecord(s, s%7, -(s % 5), 980+s%3, float64(s%11)*40, float64(s%13)*-40, 400)
}

// Records returns n concatenated records with sequence indices from..from+n-1.
func Records(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(Record(from + i))
	}
	return b.String()
}

// Split cuts data at the given offsets, which must be ascending and within
// range. It returns len(offsets)+1 chunks.
func Split(data string, offsets ...int) []string {
	chunks := make([]string, 0, len(offsets)+1)
	prev := 0
	for _, off := range offsets {
		chunks = append(chunks, data[prev:off])
		prev = off
	}
	return append(chunks, data[prev:])
}
