package main

import (
	"context"
	"testing"
	"time"

	"github.com/nav-lambda/safety.report/internal/config"
	"github.com/nav-lambda/safety.report/internal/pipeline"
)

func TestGuardedCoreRoundTrip(t *testing.T) {
	p, err := pipeline.New(config.EmptyTuningConfig(), nil, nil, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	core := &guardedCore{p: p}

	out := core.Tick(pipeline.CycleInput{Dt: 0.05})
	if !out.Processed {
		t.Fatal("tick not processed")
	}
	if core.LastOutput().Certificate.ID != out.Certificate.ID {
		t.Error("LastOutput disagrees with Tick result")
	}
	if core.Stats().TotalCertificates != 1 {
		t.Errorf("stats total = %d, want 1", core.Stats().TotalCertificates)
	}
	if core.Alpha() <= 0 {
		t.Errorf("alpha = %v, want > 0", core.Alpha())
	}
}

func TestSimulatorEmitsFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan pipeline.CycleInput, 4)
	done := make(chan error, 1)
	go func() { done <- runSimulator(ctx, frames, 200) }()

	select {
	case in := <-frames:
		if in.Dt <= 0 {
			t.Errorf("frame dt = %v, want > 0", in.Dt)
		}
		if len(in.Obstacles) == 0 {
			t.Error("simulator frame has no obstacles")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame emitted within 2s")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("simulator returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop on cancellation")
	}
}
