package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nodeconfig "lendcore/config"
	"lendcore/core"
	nativecommon "lendcore/native/common"
	"lendcore/native/comptroller"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/services/comptrollerd/archive"
	"lendcore/services/comptrollerd/config"
	"lendcore/services/comptrollerd/feed"
	"lendcore/services/comptrollerd/middleware"
	"lendcore/services/comptrollerd/server"
	"lendcore/storage"
)

// comptrollerAddress identifies the comptroller to the markets it governs.
var comptrollerAddress = common.HexToAddress("0x000000000000000000000000000000000000c0a7")

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/comptrollerd/config.yaml", "path to comptrollerd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	node, err := nodeconfig.Load(cfg.NodeConfig)
	if err != nil {
		log.Fatalf("load node config: %v", err)
	}
	if err := node.Validate(); err != nil {
		log.Fatalf("validate node config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDCORE_ENV"))
	if env == "" {
		env = node.Environment
	}
	logger := logging.SetupWithOptions("comptrollerd", env, logging.Options{
		Level:      node.Logging.Level,
		File:       node.Logging.File,
		MaxSizeMB:  node.Logging.MaxSizeMB,
		MaxBackups: node.Logging.MaxBackups,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(env, node.Telemetry))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := storage.Open(node.Storage.Backend, node.Storage.Path)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	admin, err := comptroller.ParseAddress(node.Comptroller.Admin)
	if err != nil {
		log.Fatalf("parse comptroller admin: %v", err)
	}
	events := feed.NewRing(cfg.Events.Capacity)
	var store server.EventStore
	if cfg.Archive.Enabled() {
		archived := openArchive(cfg.Archive, events, logger)
		defer archived.Close()
		store = archived
	}
	pauses := nativecommon.NewPauseSet(node.Pauses.Modules()...)
	ledger, err := core.NewLedger(db, admin, core.LedgerOptions{
		Address: comptrollerAddress,
		Logger:  logger,
		Pauses:  pauses,
		Emitter: events,
	})
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	if admin != (common.Address{}) {
		if err := ledger.Bootstrap(context.Background(), node.Comptroller); err != nil && !errors.Is(err, core.ErrAlreadyBootstrapped) {
			log.Fatalf("bootstrap ledger: %v", err)
		}
	}

	secret, err := cfg.Auth.Secret()
	if err != nil {
		log.Fatalf("configure auth: %v", err)
	}
	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: secret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		ClockSkew:  cfg.Auth.ClockSkew,
	}, logger)
	if err != nil {
		log.Fatalf("configure auth: %v", err)
	}
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	srv, err := server.New(server.Config{
		Ledger:  ledger,
		Auth:    auth,
		Limiter: middleware.NewRateLimiter(limits, logger),
		Events:  events,
		Archive: store,
		Pauses:  pauses,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	listener = server.LimitListener(listener, cfg.MaxConnections)
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext comptrollerd mode is restricted to loopback listeners or dev environment")
		}
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("comptrollerd listening", "address", cfg.ListenAddress, "markets", len(ledger.Markets()))
		if cfg.TLS.CertPath != "" {
			httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}

// telemetryConfig merges the node telemetry settings with the standard
// OTEL_EXPORTER_OTLP_* environment overrides.
func telemetryConfig(env string, node nodeconfig.Telemetry) telemetry.Config {
	endpoint := node.Endpoint
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		endpoint = value
	}
	insecure := node.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	return telemetry.Config{
		ServiceName: "comptrollerd",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     node.Metrics,
		Traces:      node.Traces,
	}
}

// openArchive attaches the SQL archive to ring and continues its sequence
// numbering where the archive left off.
func openArchive(cfg config.ArchiveConfig, ring *feed.Ring, logger *slog.Logger) *archive.Archive {
	store, err := archive.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	last, err := store.LastSequence(context.Background())
	if err != nil {
		log.Fatalf("read archive: %v", err)
	}
	ring.Resume(last)
	ring.OnRecord(func(record feed.Record) {
		if err := store.Record(context.Background(), record); err != nil {
			logger.Error("archive event failed", "sequence", record.Sequence, "type", record.Type, "error", err)
		}
	})
	logger.Info("event archive attached", "driver", cfg.Driver, "dsn", cfg.DSN, "last_sequence", last)
	return store
}
