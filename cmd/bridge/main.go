package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"artisanbridge/internal/config"
	"artisanbridge/internal/ingest"
	"artisanbridge/internal/logging"
	"artisanbridge/internal/server"
	"artisanbridge/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.PrintConfig {
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("render configuration: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	logger, err := logging.New(logging.Options{
		Debug:      cfg.Log.Debug,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	ingest.RoutePahoLogs(logger)

	channels, err := telemetry.NewChannelSet(cfg.Channels...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opsStore, closeOps, err := openOpsStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOps()

	// The recorder outlives ctx so shutdown events still reach the store.
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorder := server.NewOpsRecorder(opsStore, logger.Named("ops"), 0)
	recorderDone := make(chan struct{})
	go func() {
		recorder.Run(recorderCtx)
		close(recorderDone)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	store := telemetry.NewStore()

	dialer := ingest.NewPahoDialer(cfg.MQTT.Host, cfg.MQTT.Port, cfg.MQTT.User, cfg.MQTT.Password)
	if cfg.MQTT.ClientID != "" {
		dialer.ClientID = cfg.MQTT.ClientID
	}

	listenerConfig := ingest.Config{
		Topic:          cfg.MQTT.Topic,
		QoS:            byte(cfg.MQTT.QoS),
		Channels:       channels,
		InitialBackoff: cfg.Reconnect.InitialBackoff,
		MaxBackoff:     cfg.Reconnect.MaxBackoff,
		BackoffJitter:  cfg.Reconnect.Jitter,
	}
	listener := ingest.NewListener(dialer, store, listenerConfig,
		ingest.WithLogger(logger.Named("ingest")),
		ingest.WithStateHook(func(from, to ingest.State, cause error) {
			switch {
			case to == ingest.StateConnected:
				recorder.Record(server.OpsKindBrokerConnected, "broker connected", dialer.Broker)
			case from == ingest.StateConnected && cause != nil:
				recorder.Record(server.OpsKindBrokerLost, "broker connection lost", dialer.Broker+": "+cause.Error())
			}
		}),
	)

	bridge := server.New(store,
		server.WithLogger(logger.Named("server")),
		server.WithIngestStatus(listener),
		server.WithOpsRecorder(recorder),
		server.WithOpsEventStore(opsStore),
		server.WithConfig(server.Config{
			WriteTimeout:         cfg.Session.WriteTimeout,
			MaxMessageBytes:      cfg.Session.MaxMessageBytes,
			ShutdownTimeout:      cfg.Shutdown.Timeout,
			AcceptLimit:          cfg.Accept.RateLimit,
			AcceptWindow:         cfg.Accept.RateWindow,
			MaxSessionsPerRemote: cfg.Accept.MaxSessionsPerRemote,
			TrustProxyHeaders:    cfg.Listen.TrustProxyHeaders,
		}),
	)

	socket, err := net.Listen("tcp", cfg.Listen.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen.Addr(), err)
	}

	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- listener.Run(ctx)
	}()

	logger.Info("bridge running",
		zap.String("listen", socket.Addr().String()),
		zap.String("broker", dialer.Broker),
		zap.String("topic", cfg.MQTT.Topic),
		zap.Strings("channels", channels.Names()),
		zap.Bool("ops_postgres", cfg.DatabaseURL != ""),
	)

	serveErr := bridge.Serve(ctx, socket)
	// Serve only returns early on a listen failure; stop ingest too.
	stop()

	if err := <-listenerDone; err != nil {
		logger.Error("ingest listener stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// openOpsStore returns the Postgres event log when a database URL is set and
// an in-memory ring otherwise.
func openOpsStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.OpsEventStore, func(), error) {
	if cfg.DatabaseURL == "" {
		return server.NewMemoryOpsStore(500), func() {}, nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := server.NewPostgresOpsStore(setupCtx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres ops store: %w", err)
	}
	logger.Info("ops event log using postgres")
	return store, store.Close, nil
}
