// wortsim drops synthetic report files into a landing directory, one
// per interval, the way a field node does. Useful for demos and soak
// testing the ingestion pipeline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wortwatch/wortwatch/internal/report"
)

func main() {
	dir := flag.String("dir", "incoming_reports", "landing directory to write reports into")
	interval := flag.Duration("interval", 5*time.Second, "time between reports")
	batch := flag.String("batch", "B001-LAGER", "batch ID stamped on every report")
	count := flag.Int("count", 0, "reports to write before exiting (0 = forever)")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create landing directory: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("writing a report to %s every %s (batch %s)", *dir, *interval, *batch)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	written := 0
	for {
		if err := writeReport(*dir, *batch); err != nil {
			log.Printf("write report: %v", err)
		} else {
			written++
		}
		if *count > 0 && written >= *count {
			log.Printf("wrote %d reports, done", written)
			return
		}

		select {
		case <-ticker.C:
		case <-sig:
			log.Printf("stopping after %d reports", written)
			return
		}
	}
}

// writeReport generates one plausible reading and drops it atomically:
// written under a temp name first, then renamed, so the watcher never
// sees a partial file.
func writeReport(dir, batch string) error {
	r := report.SensorReading{
		Timestamp:   time.Now().UTC(),
		BatchID:     batch,
		Temperature: measure(18.0, 22.5),
		Pressure:    measure(14.5, 15.5),
		CO2:         measure(2.0, 2.7),
	}

	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("report_%s_%s.json",
		r.Timestamp.Format("20060102_150405"),
		uuid.NewString()[:8])
	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return err
	}

	log.Printf("report generated: %s", name)
	return nil
}

// measure draws a two-decimal value uniformly from [lo, hi].
func measure(lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(lo + rand.Float64()*(hi-lo)).Round(2)
}
