// Command simulator drives the ingestion endpoint with a fleet of fake
// wearables. Each device posts plausible vitals at its own cadence; a
// configurable fraction of readings carries an abnormal value so the
// alert path gets exercised too.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sitewatch/backend/internal/ingest"
)

type fleetConfig struct {
	Target       string
	Devices      int
	Interval     time.Duration
	Duration     time.Duration
	AbnormalRate float64
}

type fleetStats struct {
	sent     atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64

	mu        sync.Mutex
	latencies []time.Duration
}

func main() {
	target := flag.String("target", "http://localhost:8080", "backend base URL")
	devices := flag.Int("devices", 20, "number of simulated wearables")
	interval := flag.Duration("interval", 2*time.Second, "reporting cadence per device")
	duration := flag.Duration("duration", time.Minute, "how long to run")
	abnormal := flag.Float64("abnormal", 0.05, "fraction of readings with an out-of-range vital")
	flag.Parse()

	cfg := fleetConfig{
		Target:       *target,
		Devices:      *devices,
		Interval:     *interval,
		Duration:     *duration,
		AbnormalRate: *abnormal,
	}

	slog.Info("🏗️  Starting wearable fleet simulation",
		"target", cfg.Target, "devices", cfg.Devices,
		"interval", cfg.Interval, "duration", cfg.Duration)

	stats := runFleet(cfg)
	printResults(cfg, stats)
}

func runFleet(cfg fleetConfig) *fleetStats {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	stats := &fleetStats{}
	client := &http.Client{Timeout: 10 * time.Second}

	go reportProgress(ctx, stats)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Devices; i++ {
		wg.Add(1)
		go func(deviceIdx int) {
			defer wg.Done()
			runDevice(ctx, client, cfg, deviceIdx, stats)
		}(i)
	}
	wg.Wait()
	return stats
}

// runDevice loops one wearable: build a reading, post it, record latency.
// Start offsets are jittered so the fleet does not fire in lockstep.
func runDevice(ctx context.Context, client *http.Client, cfg fleetConfig, idx int, stats *fleetStats) {
	rng := rand.New(rand.NewSource(int64(idx) + time.Now().UnixNano()))

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(rng.Int63n(int64(cfg.Interval)))):
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		payload := buildReading(rng, idx, cfg.AbnormalRate)
		postReading(ctx, client, cfg.Target, payload, stats)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// buildReading produces vitals hovering around healthy baselines, walking
// around a per-device site position.
func buildReading(rng *rand.Rand, idx int, abnormalRate float64) *ingest.Payload {
	hr := 65 + rng.Intn(25)
	spo2 := 96 + rng.Intn(4)
	temp := 36.2 + rng.Float64()*0.9
	fall := false

	if rng.Float64() < abnormalRate {
		switch rng.Intn(4) {
		case 0:
			hr = 120 + rng.Intn(60)
		case 1:
			spo2 = 85 + rng.Intn(8)
		case 2:
			temp = 38.5 + rng.Float64()*1.5
		case 3:
			fall = true
		}
	}

	lat := 51.5074 + float64(idx)*0.0002 + rng.Float64()*0.0001
	lng := -0.1278 + float64(idx)*0.0002 + rng.Float64()*0.0001
	acc := 3 + rng.Float64()*5
	battery := 20 + rng.Intn(80)

	return &ingest.Payload{
		DeviceSerial: fmt.Sprintf("SIM-%04d", idx),
		HeartRate:    &hr,
		SpO2:         &spo2,
		Temperature:  &temp,
		Latitude:     &lat,
		Longitude:    &lng,
		GPSAccuracy:  &acc,
		FallDetected: fall,
		BatteryLevel: &battery,
	}
}

func postReading(ctx context.Context, client *http.Client, target string, p *ingest.Payload, stats *fleetStats) {
	body, err := json.Marshal(p)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/data", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Serial", p.DeviceSerial)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)

	stats.sent.Add(1)
	if err != nil {
		stats.rejected.Add(1)
		return
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusCreated {
		stats.accepted.Add(1)
	} else {
		stats.rejected.Add(1)
	}

	stats.mu.Lock()
	stats.latencies = append(stats.latencies, latency)
	stats.mu.Unlock()
}

func reportProgress(ctx context.Context, stats *fleetStats) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("progress",
				"sent", stats.sent.Load(),
				"accepted", stats.accepted.Load(),
				"rejected", stats.rejected.Load())
		}
	}
}

func printResults(cfg fleetConfig, stats *fleetStats) {
	sent := stats.sent.Load()
	accepted := stats.accepted.Load()
	rejected := stats.rejected.Load()

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	stats.mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	separator := "================================================================"
	fmt.Println("\n" + separator)
	fmt.Println("📊 FLEET SIMULATION RESULTS")
	fmt.Println(separator)
	fmt.Printf("Devices:           %d @ %v\n", cfg.Devices, cfg.Interval)
	fmt.Printf("Readings sent:     %d\n", sent)
	if sent > 0 {
		fmt.Printf("Accepted:          %d (%.1f%%)\n", accepted, float64(accepted)/float64(sent)*100)
		fmt.Printf("Rejected/errored:  %d (%.1f%%)\n", rejected, float64(rejected)/float64(sent)*100)
	}
	if len(latencies) > 0 {
		fmt.Printf("Latency (p50):     %v\n", percentile(latencies, 50))
		fmt.Printf("Latency (p95):     %v\n", percentile(latencies, 95))
		fmt.Printf("Latency (p99):     %v\n", percentile(latencies, 99))
		fmt.Printf("Latency (max):     %v\n", latencies[len(latencies)-1])
	}
	fmt.Println(separator)

	if sent > 0 && float64(accepted)/float64(sent) >= 0.95 {
		fmt.Println("✅ PASS: acceptance rate meets target (>95%)")
	} else {
		fmt.Println("❌ FAIL: acceptance rate below target; check device registrations")
	}
}

// percentile expects a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
