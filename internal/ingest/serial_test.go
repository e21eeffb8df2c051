package ingest

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "defaults",
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N", ReadTimeout: DefaultPollInterval},
		},
		{
			name: "long parity",
			in:   PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: " even ", ReadTimeout: time.Second},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E", ReadTimeout: time.Second},
		},
		{name: "data bits", in: PortOptions{DataBits: 9}, wantErr: true},
		{name: "stop bits", in: PortOptions{StopBits: 3}, wantErr: true},
		{name: "parity", in: PortOptions{Parity: "mark"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 57600, DataBits: 8, Parity: serial.OddParity, StopBits: serial.TwoStopBits}, mode)

	_, err = PortOptions{Parity: "?"}.SerialMode()
	assert.Error(t, err)
}

// fakePort is an in-memory serial.Port.
type fakePort struct {
	serial.Port
	data    []byte
	timeout time.Duration
	closed  bool
	timeErr error
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return p.timeErr
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func stubSerial(t *testing.T, port *fakePort, openErr error) *serial.Mode {
	t.Helper()
	var opened serial.Mode
	orig := serialOpen
	serialOpen = func(path string, mode *serial.Mode) (serial.Port, error) {
		opened = *mode
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { serialOpen = orig })
	return &opened
}

func TestOpenSerial(t *testing.T) {
	port := &fakePort{data: []byte(`{"a_x":1}`)}
	mode := stubSerial(t, port, nil)

	rc, err := OpenSerial("/dev/ttyUSB0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, DefaultPollInterval, port.timeout)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"a_x":1}`, string(data))
	require.NoError(t, rc.Close())
	assert.True(t, port.closed)
}

func TestOpenSerial_Errors(t *testing.T) {
	t.Run("options", func(t *testing.T) {
		_, err := OpenSerial("/dev/ttyUSB0", PortOptions{DataBits: 4})
		assert.Error(t, err)
	})
	t.Run("open", func(t *testing.T) {
		boom := errors.New("no such device")
		stubSerial(t, &fakePort{}, boom)
		_, err := OpenSerial("/dev/ttyUSB0", PortOptions{})
		assert.ErrorIs(t, err, boom)
	})
	t.Run("timeout", func(t *testing.T) {
		port := &fakePort{timeErr: errors.New("unsupported")}
		stubSerial(t, port, nil)
		_, err := OpenSerial("/dev/ttyUSB0", PortOptions{})
		assert.Error(t, err)
		assert.True(t, port.closed)
	})
}
