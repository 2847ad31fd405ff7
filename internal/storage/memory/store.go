// Package memory is an in-memory implementation of the storage ports,
// used in tests and for quick local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

// Store keeps everything in process memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	captures map[uuid.UUID]domain.CaptureEvent
	records  []storage.CaptureRecord
	results  map[uuid.UUID][]domain.ValidationResult
	metrics  map[string][]domain.DriftMetric
	alerts   []domain.DriftAlert
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		captures: make(map[uuid.UUID]domain.CaptureEvent),
		results:  make(map[uuid.UUID][]domain.ValidationResult),
		metrics:  make(map[string][]domain.DriftMetric),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) SaveCapture(ctx context.Context, capture domain.CaptureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(capture)
	return nil
}

func (s *Store) SaveCaptures(ctx context.Context, captures []domain.CaptureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range captures {
		s.save(c)
	}
	return nil
}

func (s *Store) save(capture domain.CaptureEvent) {
	s.captures[capture.ID] = capture
	s.records = append(s.records, storage.CaptureRecord{
		ID:              capture.ID,
		ApplicationName: capture.Request.Context.ApplicationName,
		UserID:          capture.Request.Context.UserID,
		ModelName:       capture.Request.Model.ModelName,
		ResponseText:    capture.Response.Text,
		TokensTotal:     capture.Response.TotalTokens(),
		LatencyMS:       capture.Response.LatencyMS,
		CostUSD:         capture.Response.CostUSD(),
		CapturedAt:      capture.CapturedAt,
	})
}

func (s *Store) GetCapture(ctx context.Context, id uuid.UUID) (domain.CaptureEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	capture, ok := s.captures[id]
	if !ok {
		return domain.CaptureEvent{}, storage.ErrNotFound
	}
	return capture, nil
}

func (s *Store) CapturesInWindow(ctx context.Context, application string, start, end time.Time, limit int) ([]storage.CaptureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.CaptureRecord
	for _, rec := range s.records {
		if rec.ApplicationName != application {
			continue
		}
		if rec.CapturedAt.Before(start) || rec.CapturedAt.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, application string, since time.Time) (storage.CaptureStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := storage.CaptureStats{ApplicationName: application, Since: since}
	var latencies []int
	for _, rec := range s.records {
		if rec.ApplicationName != application || rec.CapturedAt.Before(since) {
			continue
		}
		stats.CaptureCount++
		stats.TotalTokens += int64(rec.TokensTotal)
		stats.TotalCostUSD += rec.CostUSD
		stats.AvgLatencyMS += float64(rec.LatencyMS)
		latencies = append(latencies, rec.LatencyMS)
	}
	if stats.CaptureCount > 0 {
		stats.AvgLatencyMS /= float64(stats.CaptureCount)
		sort.Ints(latencies)
		// Nearest-rank p95.
		rank := (len(latencies)*95 + 99) / 100
		if rank < 1 {
			rank = 1
		}
		stats.P95LatencyMS = float64(latencies[rank-1])
	}
	return stats, nil
}

func (s *Store) SaveResults(ctx context.Context, results []domain.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		s.results[r.CaptureEventID] = append(s.results[r.CaptureEventID], r)
	}
	return nil
}

func (s *Store) ResultsForCapture(ctx context.Context, captureID uuid.UUID) ([]domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ValidationResult, len(s.results[captureID]))
	copy(out, s.results[captureID])
	return out, nil
}

func (s *Store) SaveMetrics(ctx context.Context, application string, metrics []domain.DriftMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[application] = append(s.metrics[application], metrics...)
	return nil
}

func (s *Store) RecentMetrics(ctx context.Context, application string, limit int) ([]domain.DriftMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.metrics[application]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.DriftMetric, len(all))
	copy(out, all)
	return out, nil
}

func (s *Store) SaveAlert(ctx context.Context, alert domain.DriftAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]domain.DriftAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.alerts
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.DriftAlert, len(all))
	copy(out, all)
	return out, nil
}
