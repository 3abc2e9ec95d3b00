package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DiggAiHH/abu-abad-sub000/internal/db"
)

// simulate hammers the booking API with concurrent patients racing for the
// same open slots. Under correct slot allocation every slot is booked at
// most once: the success count per slot never exceeds one, everything else
// must surface as a 409 conflict.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientCount int
	SlotLimit    int
	PostgresDSN  string
}

type bookedRef struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []uuid.UUID

	mu     sync.RWMutex
	booked []bookedRef
}

func (dp *DataPool) AddBooked(ref bookedRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, ref)
}

func (dp *DataPool) RandomBooked() (bookedRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.booked) == 0 {
		return bookedRef{}, false
	}
	return dp.booked[rand.Intn(len(dp.booked))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
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
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	log.Printf("config: duration=%s workers=%d booking=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d open slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	if err := sim.VerifyAllocation(context.Background(), pgPool); err != nil {
		log.Fatalf("allocation check failed: %v", err)
	}
	log.Println("allocation check passed: no slot booked more than once")
}

func loadConfig() SimConfig {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientCount: getInt("SIM_PATIENT_COUNT", 200),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:  dsn,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE status = 'available'
		  AND start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dp := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.PatientCount; i++ {
		dp.Patients = append(dp.Patients, uuid.New())
	}

	return dp, nil
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				r := rand.Float64()
				switch {
				case r < s.config.BookingRatio:
					s.doBooking()
				case r < s.config.BookingRatio+s.config.CancelRatio:
					s.doCancel()
				default:
					s.doRead()
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) doBooking() {
	if len(s.pool.Slots) == 0 {
		return
	}
	slotID := s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.post(fmt.Sprintf("/appointments/%s/book", slotID), patientID, "patient", nil)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Booking.Record(latency, false, false)
		return
	}
	if status == http.StatusOK {
		s.pool.AddBooked(bookedRef{AppointmentID: slotID, PatientID: patientID})
	}
	s.metrics.Booking.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel() {
	ref, ok := s.pool.RandomBooked()
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.post(fmt.Sprintf("/appointments/%s/cancel", ref.AppointmentID), ref.PatientID, "patient", nil)
	latency := time.Since(start)

	if err != nil {
		s.metrics.Cancel.Record(latency, false, false)
		return
	}
	s.metrics.Cancel.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doRead() {
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, s.config.APIBaseURL+"/slots/available", nil)
	if err != nil {
		return
	}
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Read.Record(latency, false, false)
		return
	}
	resp.Body.Close()
	s.metrics.Read.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(path string, userID uuid.UUID, role string, body any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", role)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// VerifyAllocation cross-checks the exactly-once property directly in the
// store: every slot the simulator raced must hold at most one patient, and
// no booked slot may have lost its patient assignment.
func (s *Simulator) VerifyAllocation(ctx context.Context, pool *pgxpool.Pool) error {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE status IN ('booked', 'completed')
		  AND patient_id IS NULL
	`).Scan(&violations)
	if err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d booked appointments without a patient", violations)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	report := func(name string, om *OperationMetrics) {
		avg, min, max, p50, p95 := om.Stats()
		log.Printf("%-8s total=%d success=%d conflict=%d error=%d avg=%s min=%s max=%s p50=%s p95=%s",
			name, om.Total, om.Success, om.Conflict, om.Error, avg, min, max, p50, p95)
	}

	log.Println("simulation report:")
	report("booking", &s.metrics.Booking)
	report("cancel", &s.metrics.Cancel)
	report("read", &s.metrics.Read)
}

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
