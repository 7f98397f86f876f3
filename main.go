package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/detect"
	"github.com/banshee-data/presence.report/internal/publish"
	"github.com/banshee-data/presence.report/internal/remote"
	"github.com/banshee-data/presence.report/internal/sensor"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file")
	devMode    = flag.Bool("dev", false, "Run in dev mode against an in-process simulated sensor")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	holder := config.NewHolder(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sensorAddr := fmt.Sprintf("%s:%d", cfg.GetSensorHost(), cfg.GetDataPort())
	var sim *sensor.Simulator
	if *devMode {
		var err error
		sim, err = sensor.NewSimulator(sensor.SimulatorConfig{
			Addr:            "127.0.0.1:0",
			Blocks:          4,
			SamplesPerBlock: cfg.GetSamplesPerBlock(),
			DistanceRaw:     1.5,
		})
		if err != nil {
			log.Fatalf("Failed to start sensor simulator: %v", err)
		}
		defer sim.Close()
		sensorAddr = sim.Addr()
		log.Printf("Dev mode: simulated sensor at %s", sensorAddr)
	}

	executor := remote.NewExecutor(cfg.GetSensorHost(), cfg.GetSSHPort(), cfg.GetSSHUser(), cfg.GetSSHKey(), *devMode)
	led := &remote.LedSwitch{
		Runner: executor,
		OnCmd:  cfg.GetLedOnCommand(),
		OffCmd: cfg.GetLedOffCommand(),
	}

	link, err := sensor.Dial(sensor.LinkConfig{
		Addr:            sensorAddr,
		SamplesPerBlock: cfg.GetSamplesPerBlock(),
		ReadTimeout:     cfg.GetReadTimeout(),
		Led:             led,
	})
	if err != nil {
		log.Fatalf("Failed to dial sensor: %v", err)
	}
	defer link.Close()

	var classifier detect.Classifier
	if cmd := cfg.GetClassifierCommand(); cmd != "" {
		classifier = &detect.ExecClassifier{Command: cmd, Args: cfg.ClassifierArgs}
	} else {
		log.Print("No classifier configured, every verdict will be uncertain")
		classifier = &detect.StaticClassifier{Verdict: detect.Verdict{Label: detect.VerdictUncertain}}
	}

	g, ctx := errgroup.WithContext(ctx)

	if sim != nil {
		g.Go(func() error {
			return sim.Serve(ctx)
		})
	}

	// Handshake before the loop starts; its synced timestamp anchors every
	// frame's elapsed-time stamp.
	syncedTime, _, err := link.RequestInfo()
	if err != nil {
		log.Fatalf("Sensor handshake failed: %v", err)
	}

	worker := detect.NewWorker(detect.WorkerOptions{
		Source:      link,
		Classifier:  classifier,
		Config:      holder,
		StartTimeMs: float64(syncedTime),
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})

	var publisher *publish.Publisher
	if broker := cfg.GetMQTTBroker(); broker != "" {
		publisher, err = publish.NewPublisher(broker, cfg.GetMQTTTopic())
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer publisher.Close()
		log.Printf("Publishing detections to %s on %s", broker, cfg.GetMQTTTopic())
	}
	g.Go(func() error {
		if publisher != nil {
			publisher.Run(ctx, worker.Results())
			return nil
		}
		for range worker.Results() {
		}
		return nil
	})

	server := api.NewServer(worker, link, holder)
	httpServer := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}
	g.Go(func() error {
		log.Printf("HTTP server listening on %s", cfg.GetListen())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Shutting down with error: %v", err)
	}
	log.Print("Shutdown complete")
}
