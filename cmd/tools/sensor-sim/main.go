// Standalone sensor simulator. Serves the device's UDP acquisition protocol
// so the detection service can be exercised on a workstation with no
// hardware attached.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/presence.report/internal/sensor"
)

var (
	listen   = flag.String("listen", "127.0.0.1:61231", "UDP listen address")
	blocks   = flag.Int("blocks", 4, "Blocks per frame")
	samples  = flag.Int("samples", 25000, "Samples per block")
	distance = flag.Float64("distance", 1.5, "Reported distance (raw device units)")
)

func main() {
	flag.Parse()

	sim, err := sensor.NewSimulator(sensor.SimulatorConfig{
		Addr:            *listen,
		Blocks:          *blocks,
		SamplesPerBlock: *samples,
		DistanceRaw:     float32(*distance),
	})
	if err != nil {
		log.Fatalf("Failed to start simulator: %v", err)
	}
	defer sim.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Simulated sensor listening on %s (%d blocks x %d samples, distance %.2f)",
		sim.Addr(), *blocks, *samples, *distance)
	if err := sim.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Simulator failed: %v", err)
	}
}
