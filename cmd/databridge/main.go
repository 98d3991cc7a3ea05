// databridge bridges a shop-floor host to a programmable controller and two
// marking printers over a durable Inbox/Outbox reliable-messaging pattern.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.databridge.dev/internal/command"
	"go.databridge.dev/internal/common/health"
	"go.databridge.dev/internal/common/lifecycle"
	"go.databridge.dev/internal/config"
	"go.databridge.dev/internal/device"
	"go.databridge.dev/internal/ingress"
	"go.databridge.dev/internal/router"
	"go.databridge.dev/internal/sender"
	"go.databridge.dev/internal/store"
	"go.databridge.dev/internal/watchdog"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DATABRIDGE_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting databridge", "version", version, "build_time", buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{NeedsStore: true})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	st := app.Store

	healthChecker := health.NewChecker()
	healthChecker.AddReadinessCheck(health.StoreCheck(func() error {
		_, err := st.Counts(ctx)
		return err
	}))

	wd := watchdog.New(watchdog.Config{
		HealthURL:   cfg.Peer.BaseURL + cfg.Peer.HealthPath,
		PingHost:    cfg.Peer.WatchdogHost,
		PingEnabled: cfg.Watchdog.PingEnabled,
		Timeout:     time.Duration(cfg.Watchdog.TimeoutSeconds) * time.Second,
		Interval:    time.Duration(cfg.Watchdog.IntervalSeconds) * time.Second,
		DownAfter:   cfg.Watchdog.DownAfter,
	})
	healthChecker.AddReadinessCheck(health.WatchdogCheck(
		func() string { return wd.State().String() },
		wd.IsUp,
	))

	channels := router.ChannelMap{
		command.ChannelVJ6530: device.NewSimulatedChannel(command.ChannelVJ6530, cfg.Devices.VJ6530.DefaultValue),
		command.ChannelVJ3350: device.NewSimulatedChannel(command.ChannelVJ3350, cfg.Devices.VJ3350.DefaultValue),
		command.ChannelESPPLC: device.NewSimulatedChannel(command.ChannelESPPLC, cfg.Devices.ESPPLC.DefaultValue),
		command.ChannelRaspi:  device.NewSimulatedChannel(command.ChannelRaspi, "0"),
	}

	dest := peerDestination{cfg: cfg}

	routerLoop := router.NewLoop(st, channels, dest, router.Config{PollInterval: 100 * time.Millisecond})

	senderClient := sender.NewClient(sender.ClientConfig{
		Timeout:        cfg.Peer.HTTPTimeout,
		TLSVerify:      cfg.Peer.TLSVerify,
		OutboundSecret: cfg.Peer.OutboundSecret,
	})
	senderLoop := sender.NewLoop(st, senderClient, wd, sender.LoopConfig{
		Backoff:      sender.Backoff{BaseSeconds: cfg.Retry.BaseSeconds, CapSeconds: cfg.Retry.CapSeconds},
		PollInterval: time.Second,
	})

	ingressRouter := ingress.NewRouter(st, healthChecker, ingress.Config{
		SharedSecret: cfg.SharedSecret,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      ingressRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	services := []lifecycle.Service{
		lifecycle.NewServiceFunc("watchdog",
			func(ctx context.Context) error { wd.Run(ctx); return nil },
			func(context.Context) error { return nil },
		),
		lifecycle.NewServiceFunc("router-loop",
			func(ctx context.Context) error { routerLoop.Run(ctx); return nil },
			func(context.Context) error { return nil },
		),
		lifecycle.NewServiceFunc("sender-loop",
			func(ctx context.Context) error { senderLoop.Run(ctx); return nil },
			func(context.Context) error { return nil },
		),
		lifecycle.NewHTTPService("ingress-http", httpServer),
	}

	slog.Info("databridge ready",
		"port", cfg.HTTP.Port,
		"peer_base_url", cfg.Peer.BaseURL,
		"store_path", cfg.Store.Path)

	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("databridge stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("databridge stopped")
}

// peerDestination resolves every reply to the peer's single reply endpoint,
// authenticated the same way the Sender Loop authenticates outbound jobs.
type peerDestination struct {
	cfg *config.Config
}

func (d peerDestination) URLFor(*store.InboxRecord) string {
	return d.cfg.Peer.BaseURL + "/api/inbox"
}

func (d peerDestination) HeadersFor(*store.InboxRecord) map[string]string {
	return nil
}
