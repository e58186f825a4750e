package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/schedule"
	"github.com/hackgods/dental-booking/pkg/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Days         int
	BookingRatio float64
	LookupRatio  float64
	SlotsRatio   float64
}

// FolioPool remembers folios handed out by the API.
type FolioPool struct {
	mu     sync.RWMutex
	folios []string
}

func (fp *FolioPool) Add(folio string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.folios = append(fp.folios, folio)
}

func (fp *FolioPool) Random(rng *rand.Rand) (string, bool) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	if len(fp.folios) == 0 {
		return "", false
	}
	return fp.folios[rng.Intn(len(fp.folios))], true
}

func (fp *FolioPool) Len() int {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	return len(fp.folios)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	Booking OperationMetrics
	Lookup  OperationMetrics
	Slots   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	folios  *FolioPool
	dates   []string
	slots   []schedule.Clock
	reasons []string
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Str("api", cfg.APIBaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("days", cfg.Days).
		Msg("simulator starting")

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config:  cfg,
		folios:  &FolioPool{},
		slots:   schedule.AllSlots(),
		reasons: []string{"checkup", "cleaning", "filling", "extraction-simple", "root-canal", "other"},
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
	tomorrow := time.Now().AddDate(0, 0, 1)
	for i := 0; i < cfg.Days; i++ {
		sim.dates = append(sim.dates, tomorrow.AddDate(0, 0, i).Format(schedule.DateFormat))
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		Days:         getInt("SIM_DAYS", 2),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		LookupRatio:  getFloat("SIM_LOOKUP_RATIO", 0.2),
		SlotsRatio:   getFloat("SIM_SLOTS_RATIO", 0.2),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.LookupRatio + cfg.SlotsRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.LookupRatio /= total
		cfg.SlotsRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Int("folios", s.folios.Len()).Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.LookupRatio:
				s.doLookup(ctx, rng)
			default:
				s.doSlots(ctx, rng)
			}
		}
	}
}

func classify(status int) outcome {
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeConflict
	case status >= 400 && status < 500:
		return outcomeRejected
	default:
		return outcomeError
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	reason := s.reasons[rng.Intn(len(s.reasons))]
	reqBody := map[string]string{
		"name":       gofakeit.Name(),
		"phone":      gofakeit.Phone(),
		"reasonCode": reason,
		"date":       s.dates[rng.Intn(len(s.dates))],
		"time":       s.slots[rng.Intn(len(s.slots))].String(),
	}
	if reason == "other" {
		reqBody["reasonOther"] = gofakeit.Sentence(3)
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, outcomeError)
		}
		return
	}
	defer resp.Body.Close()

	o := classify(resp.StatusCode)
	if o == outcomeSuccess {
		var created struct {
			Folio string `json:"folio"`
		}
		if raw, err := io.ReadAll(resp.Body); err == nil && json.Unmarshal(raw, &created) == nil && created.Folio != "" {
			s.folios.Add(created.Folio)
		}
	}
	s.metrics.Booking.Record(latency, o)
}

func (s *Simulator) doLookup(ctx context.Context, rng *rand.Rand) {
	folio, ok := s.folios.Random(rng)
	if !ok {
		return
	}
	s.get(ctx, &s.metrics.Lookup, fmt.Sprintf("%s/appointments/folio/%s", s.config.APIBaseURL, folio))
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	date := s.dates[rng.Intn(len(s.dates))]
	s.get(ctx, &s.metrics.Slots, fmt.Sprintf("%s/slots?date=%s", s.config.APIBaseURL, date))
}

func (s *Simulator) get(ctx context.Context, om *OperationMetrics, url string) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, outcomeError)
		}
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	om.Record(latency, classify(resp.StatusCode))
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Dates: %s\n", strings.Join(s.dates, ", "))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Folio lookup", &s.metrics.Lookup)
	printOperationReport("Slots", &s.metrics.Slots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
