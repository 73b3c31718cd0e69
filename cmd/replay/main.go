// Command replay audits a persisted certificate log: it verifies the hash
// chain and the P-score decomposition of every record, prints a summary,
// and renders P-score plots for offline review.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nav-lambda/safety.report/internal/certify"
	"github.com/nav-lambda/safety.report/internal/db"
	"github.com/nav-lambda/safety.report/internal/storage/sqlite"
)

var (
	dbFile     = flag.String("db", "", "Path to a certificate database")
	logFile    = flag.String("log", "", "Path to a JSONL certificate log")
	outDir     = flag.String("out", "plots", "Output directory for rendered plots")
	verifyOnly = flag.Bool("verify-only", false, "Verify the log without rendering plots")
)

func main() {
	flag.Parse()

	certs, err := loadCertificates()
	if err != nil {
		log.Fatalf("failed to load certificates: %v", err)
	}
	if len(certs) == 0 {
		log.Fatal("certificate log is empty")
	}

	if err := certify.VerifyChain(certs); err != nil {
		log.Fatalf("hash chain verification failed: %v", err)
	}
	if err := verifyScores(certs); err != nil {
		log.Fatalf("score verification failed: %v", err)
	}

	printSummary(certs)

	if *verifyOnly {
		return
	}
	if err := renderPlots(certs, *outDir); err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
	fmt.Printf("plots written to %s\n", *outDir)
}

func loadCertificates() ([]certify.Certificate, error) {
	switch {
	case *logFile != "":
		return certify.ReadJSONLLog(*logFile)
	case *dbFile != "":
		database, err := db.NewDB(*dbFile)
		if err != nil {
			return nil, err
		}
		defer database.Close()
		store := sqlite.NewCertificateStore(database.DB)
		ptrs, err := store.List(0)
		if err != nil {
			return nil, err
		}
		certs := make([]certify.Certificate, len(ptrs))
		for i, c := range ptrs {
			certs[i] = *c
		}
		return certs, nil
	default:
		return nil, fmt.Errorf("either -db or -log is required")
	}
}

// verifyScores recomputes the P-score decomposition of every record. The
// total must be exactly the unweighted sum of the four sub-scores.
func verifyScores(certs []certify.Certificate) error {
	for i, c := range certs {
		sum := c.HSafety + c.GoalProximity + c.ModelIntent + c.Consciousness
		if math.Abs(c.PScore-sum) > 1e-9 {
			return fmt.Errorf("certificate %d (%s): p_score %.9f != sub-score sum %.9f",
				i, c.ID, c.PScore, sum)
		}
	}
	return nil
}

func printSummary(certs []certify.Certificate) {
	verified := 0
	statuses := map[string]int{}
	for _, c := range certs {
		if c.Verified {
			verified++
		}
		statuses[c.Status]++
	}

	first, last := certs[0].Timestamp, certs[len(certs)-1].Timestamp
	fmt.Printf("certificates: %d (%s .. %s)\n", len(certs),
		first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"))
	fmt.Printf("verified:     %d (%.1f%%)\n", verified,
		100*float64(verified)/float64(len(certs)))
	for status, n := range statuses {
		fmt.Printf("  %-16s %d\n", status, n)
	}
	fmt.Println("hash chain:   OK")
}

func renderPlots(certs []certify.Certificate, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := renderHistogram(certs, filepath.Join(dir, "pscore_hist.png")); err != nil {
		return err
	}
	return renderTimeline(certs, filepath.Join(dir, "pscore_timeline.png"))
}

func renderHistogram(certs []certify.Certificate, path string) error {
	values := make(plotter.Values, len(certs))
	for i, c := range certs {
		values[i] = c.PScore
	}

	p := plot.New()
	p.Title.Text = "P-Score Distribution"
	p.X.Label.Text = "P-score"
	p.Y.Label.Text = "count"

	hist, err := plotter.NewHist(values, 20)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	p.Add(hist)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func renderTimeline(certs []certify.Certificate, path string) error {
	start := certs[0].Timestamp
	pPts := make(plotter.XYs, len(certs))
	estPts := make(plotter.XYs, len(certs))
	for i, c := range certs {
		x := c.Timestamp.Sub(start).Seconds()
		pPts[i] = plotter.XY{X: x, Y: c.PScore}
		estPts[i] = plotter.XY{X: x, Y: c.Sim2ValEstimate}
	}

	p := plot.New()
	p.Title.Text = "P-Score and SIM2VAL Estimate"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "score"

	pLine, err := plotter.NewLine(pPts)
	if err != nil {
		return fmt.Errorf("build p_score line: %w", err)
	}
	estLine, err := plotter.NewLine(estPts)
	if err != nil {
		return fmt.Errorf("build estimate line: %w", err)
	}
	estLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(pLine, estLine)
	p.Legend.Add("p_score", pLine)
	p.Legend.Add("sim2val_estimate", estLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
