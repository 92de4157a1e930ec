package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hvostenko/yaclimate/internal/config"
	"github.com/hvostenko/yaclimate/internal/core"
	"github.com/hvostenko/yaclimate/internal/dashboards"
	"github.com/hvostenko/yaclimate/internal/history"
	"github.com/hvostenko/yaclimate/internal/influx"
	"github.com/hvostenko/yaclimate/internal/mqtt"
	"github.com/hvostenko/yaclimate/internal/oauth"
	"github.com/hvostenko/yaclimate/internal/poller"
	"github.com/hvostenko/yaclimate/internal/rate"
	"github.com/hvostenko/yaclimate/internal/server"
	"github.com/hvostenko/yaclimate/yandex"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the polling daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := buildAPIClient(ctx, cfg)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	if err := core.ValidateSinks(sinks); err != nil {
		return err
	}
	defer func() {
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				logger.Warn("sink close failed", "sink", sink.Name(), "error", err)
			}
		}
	}()

	store := poller.NewStore()
	p := poller.New(client, sinks, store, poller.Options{
		Interval:  cfg.Core.PollInterval(),
		DeviceIDs: cfg.Yandex.DeviceIDs,
		Logger:    logger,
	})

	extra := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "yaclimate_build_info",
			Help: "Build information",
		}, func() float64 { return 1 }),
	}
	extra = append(extra, p.Collectors()...)
	extra = append(extra, yandex.MetricsCollectors()...)
	extra = append(extra, oauth.MetricsCollectors()...)
	extra = append(extra, rate.MetricsCollectors()...)
	registry := core.MetricsRegistry(sinks, extra...)

	dashMap := core.DashboardsMap(sinks, dashboards.Climate())
	if err := core.WriteDashboards(cfg.Core.DashboardDir, sinks, dashboards.Climate()); err != nil {
		return err
	}

	mux := server.NewMux(server.MetricsHandler(registry), store, sinks, dashMap)
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, mux)

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	logger.Info("polling started",
		"interval", cfg.Core.PollInterval(),
		"pinned_devices", len(cfg.Yandex.DeviceIDs))
	go p.Run(ctx)

	select {
	case err := <-httpErr:
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildAPIClient wires token provider, rate guard, and the REST client.
func buildAPIClient(ctx context.Context, cfg *config.Config) (*yandex.Client, error) {
	tokens, err := buildTokenProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	decl := rate.Provider("yandex").
		MaxRequestsPer(rate.Minute, cfg.Rate.PerMinute)
	if cfg.Rate.PerDay > 0 {
		decl = decl.MaxRequestsPer(rate.Day, cfg.Rate.PerDay)
	}
	httpClient := rate.WrapHTTP(decl, &http.Client{Timeout: 20 * time.Second})

	return yandex.NewClient(cfg.Yandex.BaseURL, tokens, httpClient)
}

func buildTokenProvider(ctx context.Context, cfg *config.Config) (yandex.TokenProvider, error) {
	if cfg.Yandex.StaticMode() {
		raw, err := cfg.Yandex.RawToken()
		if err != nil {
			return nil, err
		}
		return oauth.NewStaticToken(raw)
	}

	blobStore, err := buildBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	decl := oauth.Yandex(cfg.Yandex.StatePath)
	manager, err := oauth.NewManager(decl, cfg.Yandex.BootstrapFile, blobStore)
	if err != nil {
		return nil, err
	}

	interval := cfg.OAuth.RefreshInterval()
	if interval <= 0 {
		interval = oauth.DefaultRefreshInterval
	}
	manager.StartWithInterval(ctx, interval)
	return manager, nil
}

func buildBlobStore(cfg *config.Config) (oauth.BlobStore, error) {
	if !cfg.OAuth.BlobConfigured() {
		return nil, nil
	}
	store, err := oauth.NewS3Store(oauth.S3Config{
		Endpoint:      cfg.OAuth.BlobEndpoint,
		Bucket:        cfg.OAuth.BlobBucket,
		Prefix:        cfg.OAuth.BlobPrefix,
		Region:        cfg.OAuth.BlobRegion,
		AccessKeyFile: cfg.OAuth.BlobAccessKeyFile,
		SecretKeyFile: cfg.OAuth.BlobSecretKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return store, nil
}

func buildSinks(cfg *config.Config) ([]core.Sink, error) {
	var sinks []core.Sink

	if cfg.MQTT != nil {
		sink, err := buildMQTTSink(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.Influx != nil {
		token, err := cfg.Influx.Token()
		if err != nil {
			return nil, err
		}
		sink, err := influx.Connect(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.History != nil {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		sinks = append(sinks, history.NewSink(store, retention))
	}

	return sinks, nil
}

func buildMQTTSink(cfg *config.Config) (*mqtt.Sink, error) {
	password, err := cfg.MQTT.Password()
	if err != nil {
		return nil, err
	}

	// The sink is created after the client, so the OnConnect hook closes
	// over the variable rather than the value.
	var sink *mqtt.Sink
	client, err := mqtt.Connect(mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: password,
		OnConnect: func() {
			if sink != nil {
				sink.ResetAnnouncements()
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	sink = mqtt.NewSink(client, mqtt.SinkConfig{
		Topics: mqtt.Topics{
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
		},
		IncludeLastUpdated: cfg.Yandex.LastUpdatedEnabled(),
	})
	return sink, nil
}
