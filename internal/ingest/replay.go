package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"
)

// OpenReplay opens a pcap capture and returns the reassembled TCP payload
// sent to port, in stream order, as if it were read from a live connection.
// Captures holding several connections to port are replayed one after
// another in the order their data was reassembled.
func OpenReplay(path string, port int) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header of %s: %w", path, err)
	}

	pr, pw := io.Pipe()
	rp := &replay{f: f, pr: pr}
	go func() {
		err := assemble(r, layers.TCPPort(port), pw)
		pw.CloseWithError(err)
	}()
	return rp, nil
}

type replay struct {
	f  *os.File
	pr *io.PipeReader
}

func (r *replay) Read(p []byte) (int, error) {
	return r.pr.Read(p)
}

func (r *replay) Close() error {
	err := r.pr.Close()
	return errors.Join(err, r.f.Close())
}

// assemble decodes every packet from src, reassembles the TCP streams whose
// destination is port and writes their payload to w. It returns nil at the
// end of the capture.
func assemble(src *pcapgo.Reader, port layers.TCPPort, w io.Writer) error {
	factory := &streamFactory{w: w}
	assembler := tcpassembly.NewAssembler(tcpassembly.NewStreamPool(factory))
	packets := gopacket.NewPacketSource(src, src.LinkType())
	packets.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	count := 0
	for {
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read packet %d: %w", count+1, err)
		}
		count++

		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil || packet.NetworkLayer() == nil {
			continue
		}
		tcp, ok := tcpLayer.(*layers.TCP)
		if !ok || tcp.DstPort != port {
			continue
		}
		assembler.AssembleWithTimestamp(packet.NetworkLayer().NetworkFlow(), tcp, packet.Metadata().Timestamp)
		if factory.err != nil {
			return factory.err
		}
	}
	assembler.FlushAll()
	monitoring.Logf("capture replay complete: %d packets, %d bytes to port %d", count, factory.bytes, port)
	return factory.err
}

type streamFactory struct {
	w     io.Writer
	bytes int64
	err   error
}

func (f *streamFactory) New(_, _ gopacket.Flow) tcpassembly.Stream {
	return &payloadStream{f: f}
}

// payloadStream copies reassembled bytes out as they arrive; the assembler
// reuses its buffers after Reassembled returns.
type payloadStream struct {
	f *streamFactory
}

func (s *payloadStream) Reassembled(rs []tcpassembly.Reassembly) {
	for _, r := range rs {
		if s.f.err != nil || len(r.Bytes) == 0 {
			continue
		}
		n, err := s.f.w.Write(r.Bytes)
		s.f.bytes += int64(n)
		if err != nil {
			s.f.err = err
		}
	}
}

func (s *payloadStream) ReassemblyComplete() {}
