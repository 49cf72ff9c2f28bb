// console-monitor tails the ops console's realtime channels from a
// terminal: live session table, alert feed and per-channel connection
// health. It exercises the same client stack the console embeds, and
// serves its own /health and /metrics so the channel gauges are scrapable
// while it runs.
package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/clients"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/clients/settings"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/config"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/monitoring"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/realtime"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/server"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithComponent("console-monitor")
	config.LoadEnv(logger)

	baseURL := config.GetEnv("CONSOLE_API_URL", "http://localhost:18080")
	logger.WithField("base_url", baseURL).Info("Starting console monitor")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("console-monitor", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("console-monitor", version.Version, version.GitCommit)
	eventsTotal, channelUp, reconnects := metricsCollector.CreateRealtimeMetrics()

	// Streaming connections must never time out; the cookie jar carries the
	// console session for every channel.
	httpClient, err := clients.NewCredentialedClient(0)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build HTTP client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := realtime.NewProvider(realtime.ProviderConfig{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		Logger:     logger,
		Metrics: &realtime.ProviderMetrics{
			EventsReceived: eventsTotal,
			ChannelUp:      channelUp,
			Reconnects:     reconnects,
		},
	})
	provider.Start()
	defer provider.Close()

	healthChecker.AddCheck("realtime", monitoring.RealtimeHealthCheck(func() (string, string) {
		h := provider.Health()
		return string(h.Overall), fmt.Sprintf("%d/%d channels connected", connectedCount(h), len(h.Statuses))
	}))

	unsubscribe := provider.Subscribe(events.ChannelAlerts, events.Wildcard, func(ev events.Event) {
		payload, err := events.DecodePayload(ev)
		if err != nil {
			return
		}
		if alert, ok := payload.(*events.AlertPayload); ok {
			logger.WithFields(logging.Fields{
				"severity": alert.Severity,
				"source":   alert.Source,
			}).Info(alert.Message)
		}
	})
	defer unsubscribe()

	watcher, err := realtime.WatchSessions(ctx, realtime.WebSocketEndpoints{
		BaseURL: baseURL,
		Jar:     httpClient.Jar,
		Logger:  logger,
	}, realtime.WatchOptions{Authenticated: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to open session watcher")
	}

	if provider.WaitConnected(10 * time.Second) {
		logger.Info("All realtime channels connected")
	} else {
		logger.Warn("Not all realtime channels connected yet")
	}

	// Settings are read once at startup so operators see the tenant context
	// they are watching.
	settingsClient := settings.NewClient(baseURL, settings.WithHTTPClient(httpClient))
	if s, err := settingsClient.GetSettings(ctx); err != nil {
		logger.WithError(err).Warn("Settings unavailable")
	} else {
		logger.WithFields(logging.Fields{
			"company":  s.CompanyName,
			"timezone": s.Timezone,
		}).Info("Tenant settings loaded")
	}

	go renderLoop(ctx, provider, watcher)

	// The diagnostics server doubles as the lifecycle anchor: Start blocks
	// until SIGINT/SIGTERM, then shuts down gracefully.
	router := server.SetupServiceRouter(logger, "console-monitor", healthChecker, metricsCollector)
	serverConfig := server.DefaultConfig("console-monitor", "18081")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Diagnostics server failed")
	}
}

func connectedCount(h realtime.Health) int {
	n := 0
	for _, status := range h.Statuses {
		if status == events.StatusConnected {
			n++
		}
	}
	return n
}

func renderLoop(ctx context.Context, provider *realtime.Provider, watcher *realtime.SessionWatcher) {
	render := time.NewTicker(config.GetEnvDuration("MONITOR_REFRESH_INTERVAL", 5*time.Second))
	defer render.Stop()

	for {
		select {
		case <-render.C:
			printSnapshot(provider, watcher)
		case <-ctx.Done():
			return
		}
	}
}

func printSnapshot(provider *realtime.Provider, watcher *realtime.SessionWatcher) {
	health := provider.Health()

	fmt.Printf("\n=== %s | overall: %s ===\n", time.Now().Format(time.TimeOnly), health.Overall)

	channels := make([]string, 0, len(health.Statuses))
	for channel := range health.Statuses {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	for _, channel := range channels {
		fmt.Printf("  %-16s %s\n", channel, health.Statuses[channel])
	}

	if latency, ok := watcher.Latency(); ok {
		fmt.Printf("  sessions ws      %s (rtt %s)\n", watcher.Status(), latency.Round(time.Millisecond))
	} else {
		fmt.Printf("  sessions ws      %s\n", watcher.Status())
	}

	sessions := watcher.Sessions()
	fmt.Printf("  live sessions: %d\n", len(sessions))
	for i, s := range sessions {
		if i == 10 {
			fmt.Printf("    ... %d more\n", len(sessions)-i)
			break
		}
		fmt.Printf("    %-20s %-15s in=%d out=%d\n", s.Username, s.FramedIP, s.BytesIn, s.BytesOut)
	}
}
