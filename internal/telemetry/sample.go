// Package telemetry decodes the IMU sample stream: concatenated JSON objects
// with no delimiter, arriving in arbitrarily split reads.
package telemetry

import (
	"encoding/json"
	"fmt"
)

// Sample is one decoded telemetry record. All seven fields are required on the
// wire.
type Sample struct {
	S  float64 `json:"s"`
	AX float64 `json:"a_x"`
	AY float64 `json:"a_y"`
	AZ float64 `json:"a_z"`
	GX float64 `json:"g_x"`
	GY float64 `json:"g_y"`
	GZ float64 `json:"g_z"`
}

// Axis identifies one of the six sensor channels of a Sample.
type Axis int

const (
	AccelX Axis = iota
	AccelY
	AccelZ
	GyroX
	GyroY
	GyroZ

	// NumAxes is the number of sensor channels per sample.
	NumAxes = 6
)

var axisKeys = [NumAxes]string{"a_x", "a_y", "a_z", "g_x", "g_y", "g_z"}

// Axes lists every channel in storage order.
var Axes = [NumAxes]Axis{AccelX, AccelY, AccelZ, GyroX, GyroY, GyroZ}

// String returns the wire key of the axis.
func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return axisKeys[a]
}

// IsGyro reports whether the axis is an angular-rate channel.
func (a Axis) IsGyro() bool {
	return a >= GyroX && a <= GyroZ
}

// Value returns the raw value of axis a.
func (s Sample) Value(a Axis) float64 {
	switch a {
	case AccelX:
		return s.AX
	case AccelY:
		return s.AY
	case AccelZ:
		return s.AZ
	case GyroX:
		return s.GX
	case GyroY:
		return s.GY
	case GyroZ:
		return s.GZ
	}
	return 0
}

// Line returns the newline-terminated JSON form written to window logs.
func (s Sample) Line() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// wireSample uses pointers so that absent keys and JSON nulls can be told
// apart from zero values.
type wireSample struct {
	S  *float64 `json:"s"`
	AX *float64 `json:"a_x"`
	AY *float64 `json:"a_y"`
	AZ *float64 `json:"a_z"`
	GX *float64 `json:"g_x"`
	GY *float64 `json:"g_y"`
	GZ *float64 `json:"g_z"`
}

func (w *wireSample) sample() (Sample, string) {
	fields := []struct {
		key string
		v   *float64
	}{
		{"s", w.S}, {"a_x", w.AX}, {"a_y", w.AY}, {"a_z", w.AZ},
		{"g_x", w.GX}, {"g_y", w.GY}, {"g_z", w.GZ},
	}
	for _, f := range fields {
		if f.v == nil {
			return Sample{}, f.key
		}
	}
	return Sample{S: *w.S, AX: *w.AX, AY: *w.AY, AZ: *w.AZ, GX: *w.GX, GY: *w.GY, GZ: *w.GZ}, ""
}
