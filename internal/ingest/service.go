// Package ingest turns device submissions into stored readings, cache
// snapshots and alert evaluations.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smart-farm-service/internal/cache"
	"github.com/kjstillabower/smart-farm-service/internal/models"
	"github.com/kjstillabower/smart-farm-service/internal/observability"
	"github.com/kjstillabower/smart-farm-service/internal/reqctx"
)

// ReadingStore persists readings.
type ReadingStore interface {
	CreateReading(ctx context.Context, r *models.Reading) error
}

// Evaluator checks a stored reading for alert conditions.
type Evaluator interface {
	Evaluate(ctx context.Context, r models.Reading) bool
}

// Service runs the ingestion pipeline synchronously: store, cache, evaluate.
type Service struct {
	store     ReadingStore
	cache     cache.Cache
	evaluator Evaluator
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewService returns a Service. location is the display timezone for cached
// snapshots; nil means UTC.
func NewService(store ReadingStore, c cache.Cache, evaluator Evaluator, location *time.Location, logger *zap.Logger) *Service {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		cache:     c,
		evaluator: evaluator,
		location:  location,
		now:       time.Now,
		logger:    logger,
	}
}

// Location returns the display timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Ingest persists p, pushes its snapshot to the front of the cache and
// evaluates alerts. Only a store failure is returned; a cache failure is logged.
func (s *Service) Ingest(ctx context.Context, p Payload) (models.Snapshot, error) {
	logger := reqctx.Logger(ctx, s.logger)

	reading := models.Reading{
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		Soil:        p.Soil,
		SoilStatus:  p.SoilStatus,
		Timestamp:   s.now().UTC(),
	}
	if err := s.store.CreateReading(ctx, &reading); err != nil {
		observability.ReadingsIngestedTotal.WithLabelValues("store_error").Inc()
		return models.Snapshot{}, fmt.Errorf("store reading: %w", err)
	}

	snap := SnapshotOf(reading, p.HeatIndex, s.location)
	if err := s.cache.Push(ctx, snap); err != nil {
		logger.Warn("cache push failed", zap.Uint("reading_id", reading.ID), zap.Error(err))
	} else if n, err := s.cache.Len(ctx); err == nil {
		observability.CacheEntries.Set(float64(n))
	}

	alerted := s.evaluator.Evaluate(ctx, reading)
	observability.ReadingsIngestedTotal.WithLabelValues("ok").Inc()
	logger.Debug("reading ingested",
		zap.Uint("reading_id", reading.ID),
		zap.Int("soil", reading.Soil),
		zap.String("soil_status", reading.SoilStatus),
		zap.Bool("alerted", alerted))
	return snap, nil
}

// SnapshotOf builds the cached projection of r. Temperature and heat index
// are rounded to one decimal, humidity to a whole number.
func SnapshotOf(r models.Reading, heatIndex *float64, loc *time.Location) models.Snapshot {
	t := models.LocalTime(r.Timestamp, loc)
	snap := models.Snapshot{
		Temperature: roundTo(r.Temperature, 1),
		Humidity:    roundTo(r.Humidity, 0),
		Soil:        r.Soil,
		SoilStatus:  r.SoilStatus,
		Time:        &t,
	}
	if heatIndex != nil {
		hi := roundTo(*heatIndex, 1)
		snap.HeatIndex = &hi
	}
	return snap
}

// StoredSnapshot projects a persisted reading for the store fallback. The
// schema has no heat index column, so it is always nil; values are not rounded.
func StoredSnapshot(r models.Reading, loc *time.Location) models.Snapshot {
	t := ""
	if !r.Timestamp.IsZero() {
		t = models.LocalTime(r.Timestamp, loc)
	}
	return models.Snapshot{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Soil:        r.Soil,
		SoilStatus:  r.SoilStatus,
		Time:        &t,
	}
}

// roundTo rounds the exact binary value of v, so 0.15 (stored just below
// the tie) goes down and 54.5 (an exact tie) goes to even.
func roundTo(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
