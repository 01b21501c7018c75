package service

import (
	"sync"
	"time"

	"github.com/sentinel-project/sentinel/internal/domain/policy"
)

// Summary is the aggregate decision snapshot served by the metrics
// summary endpoint.
type Summary struct {
	TotalRequests  int64            `json:"total_requests"`
	Decisions      map[string]int64 `json:"decisions"`
	RiskLevels     map[string]int64 `json:"risk_levels"`
	ObservedDenies int64            `json:"observed_denies"`
	PIIDetections  int64            `json:"pii_detections"`
	RateLimited    int64            `json:"rate_limited"`
	AvgLatencyMS   float64          `json:"avg_latency_ms"`
	StartedAt      time.Time        `json:"started_at"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
}

// StatsService accumulates in-process decision counters for the summary
// endpoint. Prometheus metrics are recorded separately by the HTTP layer;
// this keeps a human-readable rollup that survives without a scraper.
type StatsService struct {
	mu             sync.Mutex
	total          int64
	decisions      map[policy.Verdict]int64
	riskLevels     map[policy.RiskLevel]int64
	observedDenies int64
	piiDetections  int64
	rateLimited    int64
	latencySum     float64
	startedAt      time.Time
}

// NewStatsService creates an empty stats accumulator.
func NewStatsService() *StatsService {
	return &StatsService{
		decisions:  make(map[policy.Verdict]int64),
		riskLevels: make(map[policy.RiskLevel]int64),
		startedAt:  time.Now().UTC(),
	}
}

// RecordDecision accumulates one evaluation outcome.
func (s *StatsService) RecordDecision(verdict policy.Verdict, level policy.RiskLevel, observedDeny bool, piiFound int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.decisions[verdict]++
	s.riskLevels[level]++
	if observedDeny {
		s.observedDenies++
	}
	s.piiDetections += int64(piiFound)
	s.latencySum += float64(latency.Microseconds()) / 1000.0
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (s *StatsService) RecordRateLimited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited++
}

// Summary returns the current rollup.
func (s *StatsService) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	decisions := make(map[string]int64, len(s.decisions))
	for verdict, n := range s.decisions {
		decisions[string(verdict)] = n
	}
	riskLevels := make(map[string]int64, len(s.riskLevels))
	for level, n := range s.riskLevels {
		riskLevels[string(level)] = n
	}

	var avgLatency float64
	if s.total > 0 {
		avgLatency = s.latencySum / float64(s.total)
	}

	now := time.Now().UTC()
	return Summary{
		TotalRequests:  s.total,
		Decisions:      decisions,
		RiskLevels:     riskLevels,
		ObservedDenies: s.observedDenies,
		PIIDetections:  s.piiDetections,
		RateLimited:    s.rateLimited,
		AvgLatencyMS:   avgLatency,
		StartedAt:      s.startedAt,
		UptimeSeconds:  now.Sub(s.startedAt).Seconds(),
	}
}
