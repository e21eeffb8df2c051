// Command motion records IMU telemetry streamed by a sensor: it splits the
// stream into rotating windows, logs each window as NDJSON, plots it to PNG
// and catalogues sessions in SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/monitor"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/version"
	"google.golang.org/grpc"
	"tailscale.com/tsweb"
)

var (
	configFile   = flag.String("config", "", "Path to a JSON config file (built-in defaults when empty)")
	listenHost   = flag.String("listen-host", "", "Host to accept sensor connections on")
	listenPort   = flag.Int("listen-port", 0, "TCP port to accept sensor connections on")
	outDir       = flag.String("out", "", "Output directory for data/ and image/")
	dbPath       = flag.String("db", "", "Path to the SQLite session catalogue")
	adminListen  = flag.String("admin-listen", "", "Listen address for the admin and debug HTTP server")
	grpcListen   = flag.String("grpc-listen", "", "Listen address for the gRPC sample and window stream (disabled when empty)")
	serialPort   = flag.String("serial", "", "Read from this serial device instead of listening on TCP")
	serialBaud   = flag.Int("serial-baud", 115200, "Baud rate for -serial")
	replayFile   = flag.String("replay", "", "Replay the sensor stream from a pcap capture instead of listening on TCP")
	replayPort   = flag.Int("replay-port", 0, "TCP port of the sensor stream inside the -replay capture (defaults to the listen port)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
	disableDB    = flag.Bool("disable-db", false, "Do not catalogue sessions in SQLite")
	disableAdmin = flag.Bool("disable-admin", false, "Do not start the admin HTTP server")
	verbose      = flag.Bool("verbose", false, "Log every window rotation")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *serialPort != "" && *replayFile != "" {
		log.Fatal("-serial and -replay are mutually exclusive")
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, setFlags())
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	log.Printf("starting %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var catalogue *db.DB
	if !*disableDB {
		catalogue, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open database %s: %v", cfg.GetDBPath(), err)
		}
		defer catalogue.Close()
	}

	hub := monitor.NewHub()
	defer hub.Close()

	srv := ingest.NewServer(ingest.Options{
		Addr:         cfg.GetListenAddr(),
		Window:       cfg.WindowConfig(),
		ReadChunk:    cfg.GetReadChunkBytes(),
		PollInterval: cfg.GetReadPollInterval(),
		OutputDir:    cfg.GetOutputDir(),
		AsyncRender:  cfg.GetAsyncRender(),
		DB:           catalogue,
		Hub:          hub,
	})

	var wg sync.WaitGroup
	if !*disableAdmin {
		mux := adminMux(hub, catalogue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveAdmin(ctx, cfg.GetAdminListen(), mux)
		}()
	}

	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("failed to listen for gRPC on %s: %v", *grpcListen, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveGRPC(ctx, lis, hub); err != nil {
				log.Printf("gRPC server failed: %v", err)
			}
		}()
	}

	if err := run(ctx, srv, cfg); err != nil {
		log.Printf("ingest stopped: %v", err)
	}
	stop()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// run serves the configured source until it is exhausted or ctx is done.
func run(ctx context.Context, srv *ingest.Server, cfg *config.Config) error {
	var (
		src    io.ReadCloser
		remote string
		err    error
	)
	switch {
	case *serialPort != "":
		remote = *serialPort
		src, err = ingest.OpenSerial(*serialPort, ingest.PortOptions{BaudRate: *serialBaud})
	case *replayFile != "":
		port := *replayPort
		if port == 0 {
			port = cfg.GetListenPort()
		}
		remote = *replayFile
		src, err = ingest.OpenReplay(*replayFile, port)
	default:
		return srv.ListenAndServe(ctx)
	}
	if err != nil {
		return err
	}
	defer src.Close()
	return srv.ServeReader(ctx, remote, src)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// setFlags returns the names of the flags given on the command line.
func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags overrides cfg with the flags that were given explicitly.
func applyFlags(cfg *config.Config, set map[string]bool) {
	if set["listen-host"] {
		cfg.ListenHost = listenHost
	}
	if set["listen-port"] {
		cfg.ListenPort = listenPort
	}
	if set["out"] {
		cfg.OutputDir = outDir
	}
	if set["db"] {
		cfg.DBPath = dbPath
	}
	if set["admin-listen"] {
		cfg.AdminListen = adminListen
	}
}

func adminMux(hub *monitor.Hub, catalogue *db.DB) *http.ServeMux {
	mux := http.NewServeMux()
	hub.AttachAdminRoutes(mux)
	if catalogue != nil {
		catalogue.AttachAdminRoutes(mux)
	}
	tsweb.Debugger(mux).KV("Version", version.String())
	return mux
}

func serveAdmin(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("admin server failed: %v", err)
		}
	}()
	log.Printf("admin server listening on %s", addr)

	<-ctx.Done()
	log.Println("shutting down admin server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("admin server force close error: %v", err)
		}
	}
}

// serveGRPC serves the monitor stream service on lis until ctx is done. Open
// streams get one second to finish before they are cut off.
func serveGRPC(ctx context.Context, lis net.Listener, hub *monitor.Hub) error {
	server := grpc.NewServer()
	monitor.RegisterStreamService(server, monitor.NewStreamService(hub))

	errc := make(chan error, 1)
	go func() { errc <- server.Serve(lis) }()
	log.Printf("gRPC monitor listening on %s", lis.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down gRPC monitor...")

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(1 * time.Second):
		server.Stop()
		<-stopped
	}
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Records windowed IMU telemetry from a TCP producer, a serial port or a pcap replay.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
}
