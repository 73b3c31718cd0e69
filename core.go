package main

import (
	"sync"

	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/pipeline"
)

// guardedCore serializes access to the single-threaded pipeline between the
// evaluation loop and the monitoring API.
type guardedCore struct {
	mu sync.Mutex
	p  *pipeline.Pipeline
}

func (g *guardedCore) Tick(in pipeline.CycleInput) pipeline.CycleOutput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Tick(in)
}

func (g *guardedCore) LastOutput() pipeline.CycleOutput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.LastOutput()
}

func (g *guardedCore) Stats() certify.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Compiler().GetStats()
}

func (g *guardedCore) Alpha() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Verifier().Alpha()
}

func (g *guardedCore) UpdateSafetyAlpha(alpha float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Verifier().UpdateSafetyAlpha(alpha)
}

func (g *guardedCore) Reset() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.p.Reset()
}
