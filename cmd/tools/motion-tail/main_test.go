package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/motion.report/internal/monitor"
	"github.com/banshee-data/motion.report/internal/window"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func dialHub(t *testing.T, hub *monitor.Hub) *monitor.StreamClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	monitor.RegisterStreamService(srv, monitor.NewStreamService(hub))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return monitor.NewStreamClient(conn)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFollowTail(t *testing.T) {
	hub := monitor.NewHub()
	client := dialHub(t, hub)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- follow(context.Background(), client, false, &out) }()
	waitFor(t, func() bool { return hub.Subscribers() == 1 })

	for _, line := range []string{`{"s":1,"a_x":0.5}`, `{"s":2,"a_x":0.25}`} {
		hub.Publish(line)
	}
	hub.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return after the hub closed")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out.String())
	}
	for i, line := range lines {
		var got map[string]float64
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if got["s"] != float64(i+1) {
			t.Errorf("line %d: s = %v, want %d", i, got["s"], i+1)
		}
	}
}

func TestFollowWindows(t *testing.T) {
	hub := monitor.NewHub()
	client := dialHub(t, hub)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- follow(context.Background(), client, true, &out) }()
	waitFor(t, func() bool { return hub.WindowSubscribers() == 1 })

	hub.SetLastClosed(&window.Window{ID: "w-1", Seq: 3, Count: 0})
	hub.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return after the hub closed")
	}

	var got struct {
		ID  string  `json:"id"`
		Seq float64 `json:"seq"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &got); err != nil {
		t.Fatalf("output is not one JSON object: %v (%q)", err, out.String())
	}
	if got.ID != "w-1" || got.Seq != 3 {
		t.Errorf("window = %+v, want id w-1 seq 3", got)
	}
}

func TestFollowCancel(t *testing.T) {
	hub := monitor.NewHub()
	defer hub.Close()
	client := dialHub(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- follow(ctx, client, false, io.Discard) }()
	waitFor(t, func() bool { return hub.Subscribers() == 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return on cancel")
	}
}
