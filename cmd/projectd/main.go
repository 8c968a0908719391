// Projectd is the project registry daemon.
//
// It registers named projects, each bound to an authorization group,
// inside a key-value substrate, keeping the per-project record and the
// per-system aggregate listing consistent across lifecycle operations.
//
// Usage:
//
//	# Start with a config file
//	projectd -config /etc/projectd/config.yaml
//
//	# Configure via environment
//	PROJECTD_SERVER_PORT=9090 projectd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/access"
	"github.com/fyrsmithlabs/projectd/internal/api"
	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/envelope"
	"github.com/fyrsmithlabs/projectd/internal/events"
	"github.com/fyrsmithlabs/projectd/internal/logging"
	"github.com/fyrsmithlabs/projectd/internal/registry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  projectd           Start the project registry daemon\n")
			fmt.Fprintf(os.Stderr, "  projectd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("projectd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the projectd server and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Build the logger
//  3. Connect the record store (NATS JetStream KV, or in-memory when no
//     NATS URL is configured)
//  4. Build the access directory and run bootstrap recovery once
//  5. Wire per-system event notifiers
//  6. Start the HTTP server, shut down gracefully on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting projectd",
		zap.String("version", version),
		zap.Int("systems", len(cfg.Systems)))

	// Access directory. The in-memory directory backs single-node
	// deployments; a networked substrate replaces it behind the
	// Directory interface.
	dir := access.NewMemoryDirectory()
	dir.AddGroup(cfg.ServiceGroup, cfg.ServiceGroup, cfg.Principal)

	var recovery access.Recovery
	if cfg.Recovery.LegacyAgent != "" {
		recovery = access.NewLegacyCredentialRecovery(
			dir,
			cfg.ServiceGroup,
			cfg.Principal,
			cfg.Recovery.LegacyAgent,
			cfg.Recovery.Passphrase.Value(),
			logger.Named("recovery"),
		)
		if err := recovery.Recover(ctx); err != nil {
			// Startup recovery is best effort; the admin endpoint can
			// retry once the credential is fixed.
			logger.Warn("startup recovery failed", zap.Error(err))
		}
	}

	// Record store.
	var store envelope.Store
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("projectd"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return fmt.Errorf("connect to nats at %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("open jetstream context: %w", err)
		}
		kv, err := envelope.EnsureBucket(js, cfg.NATS.Bucket)
		if err != nil {
			return fmt.Errorf("ensure kv bucket %q: %w", cfg.NATS.Bucket, err)
		}
		store = envelope.NewKVStore(kv, dir, logger.Named("store"))
		logger.Info("using jetstream record store", zap.String("bucket", cfg.NATS.Bucket))
	} else {
		store = envelope.NewMemoryStore(dir)
		logger.Info("using in-memory record store")
	}

	notifier := buildNotifier(cfg, nc, logger)

	reg := registry.New(registry.Options{
		Store:        store,
		Oracle:       dir,
		Notifier:     notifier,
		Systems:      cfg.Systems,
		ServiceGroup: cfg.ServiceGroup,
		Principal:    cfg.Principal,
		Logger:       logger.Named("registry"),
	})

	srv, err := api.NewServer(reg, recovery, logger.Named("http"), &api.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// buildNotifier assembles the per-system event routing from config. A
// system gets the NATS request/ack notifier when it names an event
// listener, the GitHub mirror when one is configured, both combined when
// both are present, and acknowledging no-op behavior otherwise.
func buildNotifier(cfg *config.Config, nc *nats.Conn, logger *zap.Logger) events.Notifier {
	router := events.NewRouter()

	for name, sys := range cfg.Systems {
		var chain events.Multi

		if sys.EventListener != "" {
			if nc == nil {
				logger.Warn("event listener configured without nats, events will not be delivered",
					zap.String("system", name))
			} else {
				chain = append(chain, events.NewNATSNotifier(nc, cfg.NATS.AckTimeout.Duration(), logger.Named("events")))
			}
		}

		if sys.GitHub.Enabled {
			chain = append(chain, events.NewGitHubMirror(
				sys.GitHub.Organization,
				sys.GitHub.Token.Value(),
				logger.Named("github"),
			))
		}

		if len(chain) > 0 {
			router.Register(name, chain)
		}
	}

	return router
}
