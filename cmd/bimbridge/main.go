package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bimbridge/internal/app"
	"bimbridge/internal/infra/config"
	"bimbridge/internal/infra/logger"
	"bimbridge/internal/infra/tracer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "run":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "import":
		if err := runImport(); err != nil {
			fmt.Fprintf(os.Stderr, "import: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("bimbridge", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'bimbridge --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`bimbridge - websocket bridge between a BIM model and a remote viewer

USAGE:
    bimbridge [COMMAND] [FLAGS]

COMMANDS:
    run         Connect to the peer and serve commands (default)
    import      Seed a SQLite model store from a fixture file
    doctor      Run health checks on your setup
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./bimbridge.yaml)
    --fixture PATH     Fixture to import (import only)
    --db PATH          SQLite database to import into (import only)

SIGNALS:
    SIGHUP             Drop the connection and dial the peer again
    SIGINT, SIGTERM    Shut down

CONFIGURATION:
    Config file: ./bimbridge.yaml
    Environment: BIMBRIDGE_* variables override config

EXAMPLES:
    bimbridge                                   # Run with bimbridge.yaml
    bimbridge --config /etc/bimbridge.yaml      # Run with custom config
    bimbridge import --fixture model.yaml --db model.db
    bimbridge doctor                            # Check config, store and peer`)
}

// flagValue returns the value of --name from args, in either "--name v" or
// "--name=v" form.
func flagValue(args []string, name string) string {
	flag := "--" + name
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, flag+"=") {
			return strings.TrimPrefix(arg, flag+"=")
		}
	}
	return ""
}

func configPath() string {
	if p := flagValue(os.Args, "config"); p != "" {
		return p
	}
	if p := os.Getenv("BIMBRIDGE_CONFIG"); p != "" {
		return p
	}
	return "bimbridge.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Bridge components
	bridge, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := bridge.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	// 4. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// 5. Start
	log.Info("bimbridge starting",
		"version", version,
		"uri", cfg.Connection.URI,
		"store", cfg.Store.Driver,
		"chunk_size", cfg.Transfer.ChunkSize,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- bridge.Run(ctx) }()

	for {
		select {
		case <-hup:
			log.Info("reconnect requested")
			if err := bridge.Reconnect(); err != nil {
				log.Warn("reconnect failed", "error", err)
			}
		case err := <-errCh:
			return err
		}
	}
}
