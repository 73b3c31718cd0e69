package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/timeutil"
)

func compileTestLog(t *testing.T, n int) []certify.Certificate {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	compiler := certify.NewCompiler(certify.Config{
		WindowCapacity:        100,
		Beta:                  0.5,
		Scale:                 10,
		HistoricalMeanDefault: 50,
		PScoreThreshold:       50,
	}, nil, clock)

	certs := make([]certify.Certificate, 0, n)
	for i := 0; i < n; i++ {
		cert, err := compiler.CompileCertificate(certify.Input{
			PScore:        77.3,
			HSafety:       75,
			GoalProximity: 0.5,
			ModelIntent:   0.8,
			Consciousness: 1,
			MinMargin:     float64(i % 5),
			BreachReason:  "SAFE",
		})
		if err != nil {
			t.Fatalf("CompileCertificate: %v", err)
		}
		certs = append(certs, cert)
		clock.Advance(50 * time.Millisecond)
	}
	return certs
}

func TestVerifyScoresAcceptsConsistentLog(t *testing.T) {
	certs := compileTestLog(t, 20)
	if err := verifyScores(certs); err != nil {
		t.Fatalf("verifyScores: %v", err)
	}
}

func TestVerifyScoresRejectsInconsistentTotal(t *testing.T) {
	certs := compileTestLog(t, 5)
	certs[3].PScore += 1
	if err := verifyScores(certs); err == nil {
		t.Fatal("verifyScores accepted a record with a broken decomposition")
	}
}

func TestRenderPlotsWritesFiles(t *testing.T) {
	certs := compileTestLog(t, 50)
	dir := t.TempDir()

	if err := renderPlots(certs, dir); err != nil {
		t.Fatalf("renderPlots: %v", err)
	}
	for _, name := range []string{"pscore_hist.png", "pscore_timeline.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing plot %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("plot %s is empty", name)
		}
	}
}
