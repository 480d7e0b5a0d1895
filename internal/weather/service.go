package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoData is returned when neither the store nor any provider can supply a
// snapshot for a location.
var ErrNoData = errors.New("no weather data available")

// Service orchestrates fetching from multiple providers and persisting
// snapshots.
type Service struct {
	store     Store
	providers []Provider
	logger    *slog.Logger
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		providers: providers,
		logger:    logger,
	}
}

// FetchAndStore fetches data from all providers concurrently for the given
// location, aggregates successful readings, and stores a snapshot.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	readings, err := s.fetchReadings(ctx, loc)
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		// No providers succeeded; do not overwrite the last good snapshot.
		s.logger.Warn("no successful provider readings, keeping last good snapshot", "location", loc.Key())
		return nil
	}

	snapshot := AggregateReadings(loc, readings)
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}
	s.store.SaveSnapshot(loc, snapshot)
	return nil
}

// Current returns the freshest snapshot for a location: the stored one if
// present, otherwise a live aggregated fetch.
func (s *Service) Current(ctx context.Context, loc Location) (Snapshot, error) {
	if snapshot, err := s.store.GetLatest(loc); err == nil {
		return snapshot, nil
	}

	readings, err := s.fetchReadings(ctx, loc)
	if err != nil {
		return Snapshot{}, err
	}
	if len(readings) == 0 {
		return Snapshot{}, ErrNoData
	}

	snapshot := AggregateReadings(loc, readings)
	s.store.SaveSnapshot(loc, snapshot)
	return snapshot, nil
}

func (s *Service) fetchReadings(ctx context.Context, loc Location) ([]ProviderReading, error) {
	if len(s.providers) == 0 {
		return nil, fmt.Errorf("no weather providers configured")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []ProviderReading
	)

	for _, p := range s.providers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.Fetch(ctx, loc)
			if err != nil {
				// Log and continue; we want partial success when possible.
				s.logger.Warn("provider fetch failed", "provider", p.Name(), "location", loc.Key(), "error", err)
				return
			}

			mu.Lock()
			readings = append(readings, r)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return readings, nil
}
