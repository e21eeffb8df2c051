// Command sim-device plays the part of the IMU: it connects to a motion
// recorder and streams samples in the firmware's wire format, concatenated
// JSON objects with no separator, at the device rate.
//
// Usage:
//
//	go run ./cmd/tools/sim-device [flags]
//
// Flags:
//
//	-addr      Recorder address (default: localhost:30007)
//	-log       NDJSON window log to replay; synthetic motion when empty
//	-count     Number of synthetic samples (default: 900)
//	-interval  Delay between samples (default: 100ms)
//	-loop      Loop the log when it ends
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:30007", "Recorder address")
	logPath := flag.String("log", "", "NDJSON window log to replay (synthetic motion when empty)")
	count := flag.Int("count", 900, "Number of synthetic samples")
	interval := flag.Duration("interval", 100*time.Millisecond, "Delay between samples")
	loop := flag.Bool("loop", false, "Loop the log when it ends")
	flag.Parse()

	var samples []telemetry.Sample
	if *logPath != "" {
		var err error
		samples, err = loadLog(*logPath)
		if err != nil {
			log.Fatalf("Failed to load log: %v", err)
		}
		log.Printf("Loaded %d samples from %s", len(samples), *logPath)
	} else {
		samples = synthetic(*count)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()
	log.Printf("Streaming to %s", *addr)

	for {
		n, err := stream(ctx, conn, samples, *interval)
		log.Printf("Sent %d samples", n)
		if err != nil || !*loop {
			if err != nil && ctx.Err() == nil {
				log.Printf("Stream stopped: %v", err)
			}
			return
		}
	}
}

// loadLog reads the samples of an NDJSON window log.
func loadLog(path string) ([]telemetry.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []telemetry.Sample
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s telemetry.Sample
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		samples = append(samples, s)
	}
	return samples, sc.Err()
}

// synthetic returns n samples of a slow oscillation: gravity on Z and a
// rotation about X.
func synthetic(n int) []telemetry.Sample {
	samples := make([]telemetry.Sample, n)
	for i := range samples {
		phase := 2 * math.Pi * float64(i) / 300
		samples[i] = telemetry.Sample{
			S:  float64(i),
			AX: math.Round(100 * math.Sin(phase)),
			AY: math.Round(50 * math.Cos(phase)),
			AZ: 980,
			GX: math.Round(40000*math.Cos(phase)) / 100,
			GY: 0,
			GZ: math.Round(2000*math.Sin(2*phase)) / 100,
		}
	}
	return samples
}

// stream writes each sample with its compact JSON encoding and no separator,
// pausing interval between samples. It returns the number of samples sent.
func stream(ctx context.Context, w io.Writer, samples []telemetry.Sample, interval time.Duration) (int, error) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for i, s := range samples {
		line, err := s.Line()
		if err != nil {
			return i, err
		}
		if _, err := w.Write(line[:len(line)-1]); err != nil {
			return i, err
		}
		if tick == nil {
			if err := ctx.Err(); err != nil {
				return i + 1, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return i + 1, ctx.Err()
		case <-tick:
		}
	}
	return len(samples), nil
}
