package main

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/michaelayoade/dotmac-isp-sub003/internal/sim"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/config"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/monitoring"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/server"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithComponent("realtime-sim")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting realtime simulator")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("realtime-sim", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("realtime-sim", version.Version, version.GitCommit)

	// Create custom metrics
	hubMetrics := &sim.HubMetrics{
		EventsPublished: metricsCollector.NewCounter("sim_events_published_total", "Synthetic events published", []string{"channel", "event_type"}),
		Subscribers:     metricsCollector.NewGauge("sim_subscribers_active", "Active stream subscribers", []string{"channel"}),
	}

	// Event hub plus the in-memory stores backing the job/campaign sockets
	hub := sim.NewHub(logger, hubMetrics)
	jobs := sim.NewJobStore(logger, 0)
	campaigns := sim.NewCampaignStore(logger, 0)
	generator := sim.NewGenerator(hub, logger, config.GetEnvDuration("SIM_EVENT_INTERVAL", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		generator.Run(ctx)
		return nil
	})
	group.Go(func() error {
		jobs.Run(ctx, config.GetEnvDuration("SIM_JOB_INTERVAL", 0))
		return nil
	})
	group.Go(func() error {
		campaigns.Run(ctx, config.GetEnvDuration("SIM_CAMPAIGN_INTERVAL", 0))
		return nil
	})

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"PORT": config.GetEnv("PORT", "18080"),
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "realtime-sim", healthChecker, metricsCollector)

	// SSE channels
	for _, channel := range events.Channels {
		router.GET("/realtime/"+channel, hub.ServeSSE(channel))
	}

	// WebSocket routes
	router.GET("/realtime/ws/sessions", sim.ServeSessions(hub, logger))
	router.GET("/realtime/ws/jobs/:id", sim.ServeJob(jobs, logger))
	router.GET("/realtime/ws/campaigns/:id", sim.ServeCampaign(campaigns, logger))

	// Start server with graceful shutdown. WriteTimeout stays zero so the
	// server never cuts long-lived SSE and WebSocket streams.
	serverConfig := server.DefaultConfig("realtime-sim", "18080")
	serverConfig.WriteTimeout = 0
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	cancel()
	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("Simulator worker error")
	}
}
