// Command gatewatch watches a gate motor's status lamp on a GPIO input,
// classifies its blink pattern into a gate state and reports state changes
// over Pushover and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/config"
	"github.com/crossley/gatewatch/internal/gpio"
	"github.com/crossley/gatewatch/internal/history"
	"github.com/crossley/gatewatch/internal/indicator"
	"github.com/crossley/gatewatch/internal/logging"
	"github.com/crossley/gatewatch/internal/logic"
	"github.com/crossley/gatewatch/internal/metrics"
	"github.com/crossley/gatewatch/internal/monitor"
	"github.com/crossley/gatewatch/internal/mqtt"
	"github.com/crossley/gatewatch/internal/netwait"
	"github.com/crossley/gatewatch/internal/notify"
	"github.com/crossley/gatewatch/internal/status"
	"github.com/crossley/gatewatch/internal/web"
)

func main() {
	printState := flag.Bool("print-state", false, "Read the status lamp once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *printState); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, printState bool) error {
	reader, err := gpio.NewRealReader(cfg.Input.StatusPin, cfg.Input.Invert)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	if printState {
		on, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("status lamp: %s\n", lampString(on))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Onboard indicator. Losing the LED only loses diagnostics, so a
	// request failure is not fatal.
	var ind *indicator.Driver
	if led, err := gpio.NewRealLED(cfg.Input.LEDPin); err != nil {
		logger.Warn("led_unavailable", zap.Int("pin", cfg.Input.LEDPin), zap.Error(err))
	} else {
		defer led.Close()
		ind = indicator.New(led, logger)
		go ind.Run(ctx)
	}

	// The gate controller site comes back from power cuts faster than the
	// network does; hold off until the probe address answers.
	if err := netwait.Wait(ctx, cfg.Net, logger, func() {
		if ind != nil {
			ind.Flash(indicator.PatternConnecting)
		}
	}); err != nil {
		return err
	}
	if cfg.Net.Probe != "" && ind != nil {
		ind.Flash(indicator.PatternConnected)
	}

	// Already validated by config.Load; errors here are unreachable.
	signatures, err := cfg.Window.Signatures()
	if err != nil {
		return err
	}
	policies, err := cfg.Window.Policies()
	if err != nil {
		return err
	}

	met := metrics.New()

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled() {
		real, err := mqtt.NewRealPublisher(cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer real.Close()
		publisher = real
		mqttStatus = real
	} else {
		logger.Info("mqtt_disabled")
	}

	recorder := history.NewRecorder(cfg.Influx, logger)
	defer recorder.Close()
	if recorder == nil {
		logger.Info("history_disabled")
	}

	var sender notify.Notifier = notify.Multi{}
	if p := notify.NewPushover(notify.PushoverOptions{
		URL:             cfg.Pushover.URL,
		Token:           cfg.Pushover.Token.Unmask(),
		User:            cfg.Pushover.User.Unmask(),
		Sound:           cfg.Pushover.Sound,
		Timeout:         cfg.Pushover.Timeout,
		BreakerFailures: cfg.Pushover.BreakerFailures,
		BreakerCooldown: cfg.Pushover.BreakerCooldown,
	}); p != nil {
		sender = notify.Multi{p}
	} else {
		logger.Warn("pushover_disabled")
	}

	dispatcher := notify.NewDispatcher(sender, logger, cfg.Pushover.Title, 16, cfg.Pushover.Timeout)
	dispatcher.OnResult = func(req logic.Request, err error) {
		if err != nil {
			met.NotifyFailed.Inc()
			return
		}
		met.NotifySent.Inc()
		if ind != nil {
			ind.Flash(indicator.PatternNotified)
		}
	}
	go dispatcher.Run(ctx)

	tracker := status.NewTracker(time.Now(), status.Config{
		SampleMs:      cfg.Input.SamplePeriod.Milliseconds(),
		WindowSamples: cfg.Window.Samples,
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			logger.Warn("startup_publish_failed", zap.Error(err))
		} else {
			logger.Info("startup_published")
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, met.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http_server_error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http_listening", zap.String("addr", cfg.HTTP.Addr))
	}

	mon := monitor.New(monitor.Deps{
		Reader:     reader,
		Publisher:  publisher,
		MQTTStatus: mqttStatus,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Tracker:    tracker,
		Metrics:    met,
		Indicator:  ind,
		Logger:     logger,
		Now:        time.Now,
	}, monitor.Config{
		WindowSamples: cfg.Window.Samples,
		Heartbeat:     cfg.MQTT.Heartbeat,
		Signatures:    signatures,
		Policies:      policies,
	})

	ticker := time.NewTicker(cfg.Input.SamplePeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("monitoring",
		zap.Int("status_pin", cfg.Input.StatusPin),
		zap.Duration("sample_period", cfg.Input.SamplePeriod),
		zap.Int("window_samples", cfg.Window.Samples),
		zap.Duration("window", cfg.WindowDuration()))

	return mon.Run(ticker.C, sigCh)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func lampString(on bool) string {
	if on {
		return "ILLUMINATED"
	}
	return "DARK"
}
