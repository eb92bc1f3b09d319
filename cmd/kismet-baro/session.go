package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kismet-baro/internal/altitude"
	"kismet-baro/internal/config"
	"kismet-baro/internal/indicator"
	"kismet-baro/internal/ingest"
	"kismet-baro/internal/kismet"
	"kismet-baro/internal/metrics"
	"kismet-baro/internal/publish"
	"kismet-baro/internal/record"
	"kismet-baro/internal/udp"
)

var (
	openAltitude  = altitude.Open
	connectMQTT   = connectPublisher
	openIndicator = openLED
	openUDP       = openForwarder
	geteuid       = os.Geteuid
)

func connectPublisher(cfg publish.Config) (ingest.Notifier, func(), error) {
	p, err := publish.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func openForwarder(dest string) (ingest.Notifier, func(), error) {
	f, err := udp.NewForwarder(dest)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openLED(pin int, pulse time.Duration) (ingest.Notifier, func(), error) {
	led, err := indicator.Open(pin, pulse)
	if err != nil {
		return nil, nil, err
	}
	return led, func() { _ = led.Close() }, nil
}

// runSession wires the configured components and runs one ingest session.
// Setup failures are returned before any connection to Kismet is attempted.
func runSession(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	sink, err := record.Create(cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer sink.Close()
	logger.Printf("recording to %s", sink.Path())

	if cfg.Altitude.IsI2C() && geteuid() != 0 {
		logger.Printf("warning: not running as root; %s on %s may not be accessible", cfg.Altitude.Source, cfg.Altitude.I2CBus)
	}
	alt, err := openAltitude(altitude.Config{
		Source:     cfg.Altitude.Source,
		I2CBus:     cfg.Altitude.I2CBus,
		I2CAddr:    cfg.Altitude.I2CAddr,
		SeaLevelPa: cfg.Altitude.SeaLevelPa,
		OffsetM:    cfg.Altitude.OffsetM,
		FixedM:     cfg.Altitude.FixedM,
	})
	if err != nil {
		return fmt.Errorf("altitude source: %w", err)
	}
	defer alt.Close()

	start, err := alt.Altitude()
	if err != nil {
		return fmt.Errorf("altitude source: %w", err)
	}
	logger.Printf("starting altitude %.2f m (%s)", start, cfg.Altitude.Source)

	var notifiers []ingest.Notifier
	if cfg.MQTT.Enable {
		n, closeFn, err := connectMQTT(publish.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}
		defer closeFn()
		notifiers = append(notifiers, n)
	}
	if cfg.UDP.Enable {
		n, closeFn, err := openUDP(cfg.UDP.Dest)
		if err != nil {
			return err
		}
		defer closeFn()
		notifiers = append(notifiers, n)
		logger.Printf("forwarding observations to udp %s", cfg.UDP.Dest)
	}
	if cfg.Indicator.Enable {
		n, closeFn, err := openIndicator(cfg.Indicator.GPIOPin, cfg.Indicator.Pulse)
		if err != nil {
			// The LED is cosmetic; record without it.
			logger.Printf("indicator disabled: %v", err)
		} else {
			defer closeFn()
			notifiers = append(notifiers, n)
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		collector, err = metrics.New(reg)
		if err != nil {
			return err
		}
	}

	client, err := kismet.NewClient(kismet.ClientConfig{
		Addr:         cfg.Kismet.Addr,
		DialTimeout:  cfg.Kismet.DialTimeout,
		MaxLineBytes: cfg.Kismet.MaxLineBytes,
	})
	if err != nil {
		return err
	}

	loop, err := ingest.New(ingest.Config{
		Conn:        client,
		Altitude:    alt,
		Sink:        sink,
		Notifiers:   notifiers,
		BurstWindow: cfg.Kismet.BurstWindow,
		Metrics:     collector,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if collector != nil {
		srvCtx, stopSrv := context.WithCancel(ctx)
		defer stopSrv()
		h := collector.Handler(func() any { return loop.Status() })
		go func() {
			if err := metrics.Serve(srvCtx, cfg.Metrics.Listen, h); err != nil {
				logger.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	logger.Printf("connecting to kismet at %s", cfg.Kismet.Addr)
	err = loop.Run(ctx)
	st := loop.Status()
	logger.Printf("session ended: recorded=%d suppressed=%d", st.Recorded, st.Suppressed)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
