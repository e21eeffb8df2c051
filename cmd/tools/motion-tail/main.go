// Command motion-tail follows a running recorder over its gRPC monitor
// service and prints one JSON object per line: every decoded sample, or with
// -windows every window as it rotates.
//
// Usage:
//
//	go run ./cmd/tools/motion-tail [flags]
//
// Flags:
//
//	-addr     Recorder gRPC address (default: localhost:50061)
//	-windows  Follow rotated windows instead of samples
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/motion.report/internal/monitor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "Recorder gRPC address")
	windows := flag.Bool("windows", false, "Follow rotated windows instead of samples")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	if err := follow(ctx, monitor.NewStreamClient(conn), *windows, os.Stdout); err != nil {
		log.Fatalf("Stream ended: %v", err)
	}
}

// follow copies the chosen stream to out until the server ends it or ctx is
// done. Both count as a clean end.
func follow(ctx context.Context, client *monitor.StreamClient, windows bool, out io.Writer) error {
	open := client.Tail
	if windows {
		open = client.Windows
	}
	stream, err := open(ctx)
	if err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			return err
		}
		if err := writeLine(out, msg); err != nil {
			return err
		}
	}
}

func writeLine(out io.Writer, msg *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: false}.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}
