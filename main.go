// Command safety-core runs the robot safety certification loop: it ingests
// sensor frames (over UDP or from a built-in simulator), drives the
// evaluation pipeline at a fixed rate, persists the certificate log, and
// serves the monitoring API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/db"
	"github.com/nav-lambda/safety.report/internal/geom"
	"github.com/nav-lambda/safety.report/internal/monitor"
	"github.com/nav-lambda/safety.report/internal/monitoring"
	"github.com/nav-lambda/safety.report/internal/pipeline"
	"github.com/nav-lambda/safety.report/internal/storage/sqlite"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address for the monitoring API")
	dbFile     = flag.String("db", "safety.db", "Path to the certificate database")
	configPath = flag.String("config", "", "Path to a tuning config JSON file (defaults apply when empty)")
	udpPort    = flag.Int("udp", 0, "UDP port for sensor frame input (JSON frames); 0 disables")
	sim        = flag.Bool("sim", false, "Run the built-in scenario simulator instead of live input")
	tickRate   = flag.Float64("rate", 20, "Evaluation tick rate in Hz")
	exportDir  = flag.String("export-dir", "exports", "Directory for certificate log exports; empty disables the export endpoint")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("listen address is required")
	}
	if !*sim && *udpPort == 0 {
		log.Fatal("either -sim or -udp is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}
	store := sqlite.NewCertificateStore(database.DB)

	p, err := pipeline.New(cfg, store, func(engaged bool) {
		if engaged {
			monitoring.Logf("LOCKDOWN engaged: P-score below threshold")
		} else {
			monitoring.Logf("lockdown released")
		}
	}, nil)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	// Resume the hash chain from the persisted log so the new session's
	// certificates stay linked.
	if last, err := store.Last(); err != nil {
		log.Fatalf("failed to read certificate log head: %v", err)
	} else if last != nil {
		n, err := store.Count()
		if err != nil {
			log.Fatalf("failed to count certificates: %v", err)
		}
		p.Compiler().ResumeChain(last.Hash, n)
	}

	core := &guardedCore{p: p}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frames := make(chan pipeline.CycleInput, 16)

	// Frame source: UDP listener or the built-in simulator.
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if *sim {
			err = runSimulator(ctx, frames, *tickRate)
		} else {
			err = runUDPListener(ctx, frames, *udpPort)
		}
		if err != nil && err != context.Canceled {
			monitoring.Logf("frame source failed: %v", err)
		}
		monitoring.Logf("frame source terminated")
	}()

	// Evaluation loop: one Tick per frame.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case in := <-frames:
				out := core.Tick(in)
				if out.Processed && !out.Certificate.Verified {
					monitoring.Logf("certificate %s: %s (P=%.2f)",
						out.Certificate.ID, out.Certificate.Status, out.PScore)
				}
			case <-ctx.Done():
				monitoring.Logf("evaluation loop terminated")
				return
			}
		}
	}()

	// Monitoring API.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:   *listen,
			Core:      core,
			Store:     store,
			ExportDir: *exportDir,
		})
		if err := ws.Start(ctx); err != nil {
			monitoring.Logf("web server error: %v", err)
		}
	}()

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
}

// runUDPListener decodes JSON cycle inputs from UDP datagrams, one frame
// per packet, and feeds them to the evaluation loop. Malformed packets are
// logged and dropped.
func runUDPListener(ctx context.Context, frames chan<- pipeline.CycleInput, port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return err
	}
	defer conn.Close()
	monitoring.Logf("listening for sensor frames on udp/%d", port)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return context.Canceled
			default:
				return err
			}
		}

		var in pipeline.CycleInput
		if err := json.Unmarshal(buf[:n], &in); err != nil {
			monitoring.Logf("dropping malformed frame: %v", err)
			continue
		}
		select {
		case frames <- in:
		case <-ctx.Done():
			return context.Canceled
		default:
			// Evaluation loop is behind; drop rather than block the socket.
			monitoring.Logf("dropping frame: evaluation loop busy")
		}
	}
}

// runSimulator generates a deterministic patrol scenario: the robot sweeps
// back and forth past a fixed obstacle, periodically dipping inside the
// safety margin so certification failures are exercised end to end.
func runSimulator(ctx context.Context, frames chan<- pipeline.CycleInput, rateHz float64) error {
	if rateHz <= 0 {
		rateHz = 20
	}
	dt := 1.0 / rateHz
	ticker := time.NewTicker(time.Duration(float64(time.Second) * dt))
	defer ticker.Stop()

	obstacle := geom.Vec3{X: 3}
	goal := geom.Vec3{X: 6}
	t := 0.0
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}

		// Sinusoidal sweep along X between 0 and 6 m, crossing the
		// obstacle's margin twice per period.
		pos := geom.Vec3{X: 3 + 3*math.Sin(t/4)}
		vel := geom.Vec3{X: 0.75 * math.Cos(t/4)}
		intent := 0.9

		in := pipeline.CycleInput{
			GPSPosition:           pos,
			IMUVelocity:           vel,
			Obstacles:             []geom.Vec3{obstacle},
			GoalPosition:          &goal,
			ModelIntentConfidence: &intent,
			Dt:                    dt,
		}
		select {
		case frames <- in:
		case <-ctx.Done():
			return context.Canceled
		}
		t += dt
	}
}
