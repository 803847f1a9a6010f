package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"face-attendance/bot"
	"face-attendance/internal/handlers"
	"face-attendance/internal/mqtt"
	"face-attendance/internal/notify"
	"face-attendance/internal/recognition"
	"face-attendance/internal/services"
)

const (
	feedBuffer      = 256
	shutdownTimeout = 5 * time.Second
)

func serveCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attendance pipeline",
		Long:  "Start the HTTP API, detection subscribers, evaluator and alert dispatcher.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().String("addr", opts.v.GetString("http.addr"), "HTTP listen address")
	cmd.Flags().Bool("mqtt", opts.v.GetBool("mqtt.enabled"), "Subscribe to detections and publish alerts over MQTT")
	_ = opts.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = opts.v.BindPFlag("mqtt.enabled", cmd.Flags().Lookup("mqtt"))

	return cmd
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, log := opts.cfg, opts.log

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	retry := services.NewRetryQueue(cfg.Retry, a.deadLetters, a.metrics, log)
	ingestor := services.NewIngestor(
		a.directory,
		a.events,
		a.reconciler,
		retry,
		a.policy,
		cfg.Directory.Timeout,
		a.metrics,
		log,
	)

	var sinks []services.AlertSink

	var telegram *bot.Bot
	if cfg.Telegram.BotToken != "" {
		telegram, err = bot.New(cfg.Telegram.BotToken, cfg.Telegram.AuthorizedChatID, bot.Deps{
			Directory: a.directory,
			Ledger:    a.ledger,
			Alerts:    a.alerts,
			Reports:   a.analytics,
			Location:  a.policy.Location,
		}, log)
		if err != nil {
			log.Warn("failed to init Telegram bot", "error", err)
		} else {
			sinks = append(sinks, telegram)
		}
	}

	if len(cfg.Notify.ShoutrrrURLs) > 0 {
		sink, err := notify.NewShoutrrrSink(cfg.Notify.ShoutrrrURLs, cfg.Notify.Timeout)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	var mqttClient *mqtt.Client
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT, log)
		if err := mqttClient.Connect(ctx); err != nil {
			return err
		}
		defer mqttClient.Disconnect()
		publisher = mqtt.NewPublisher(mqttClient)
		sinks = append(sinks, publisher)
	}

	if len(sinks) == 0 {
		log.Warn("no alert sinks configured, alerts stay in the outbox")
	}
	dispatcher := services.NewDispatcher(
		a.alerts,
		a.directory,
		sinks,
		cfg.Dispatcher.Interval,
		cfg.Dispatcher.BatchSize,
		a.metrics,
		log,
	)
	a.evaluator.OnAlertsRaised(dispatcher.Wake)

	// Feed subscriptions have to exist before the first record is committed.
	if telegram != nil {
		changes := a.feed.Subscribe("telegram", feedBuffer)
		g.Go(func() error { return telegram.RunFeed(ctx, changes) })
		g.Go(func() error { return telegram.Run(ctx) })
	}
	if publisher != nil {
		changes := a.feed.Subscribe("mqtt", feedBuffer)
		g.Go(func() error { return publisher.RunFeed(ctx, changes) })
		g.Go(func() error { return mqtt.NewDetectionSubscriber(mqttClient, ingestor).Run(ctx) })
	}

	var frames handlers.FrameProcessor
	if cfg.Recognition.URL != "" {
		matcher := recognition.NewHTTPMatcher(cfg.Recognition.URL, cfg.Recognition.Timeout, log)
		frames = recognition.NewFrameProcessor(matcher, ingestor, log)
	}

	router := handlers.SetupRouter(handlers.RouterConfig{
		Detections: handlers.NewDetectionHandler(ingestor, frames, log),
		Attendance: handlers.NewAttendanceHandler(a.ledger, a.events, a.analytics, a.alerts, a.deadLetters, a.policy.Location),
		Metrics:    a.metrics.Handler(),
		Health: func() map[string]any {
			health := map[string]any{
				"retry_queue": retry.Len(),
				"feed":        a.feed.Stats(),
			}
			if mqttClient != nil {
				health["mqtt_connected"] = mqttClient.IsConnected()
			}
			return health
		},
		Log: log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error { return retry.Run(ctx) })
	g.Go(func() error { return a.evaluator.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })

	g.Go(func() error {
		log.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
