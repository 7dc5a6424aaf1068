package calculator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"address-distance/internal/models"

	"golang.org/x/time/rate"
)

type ProgressCallback func(current, total int, msg string)
type LoggerCallback func(msg string)

// DefaultInterval is the minimum spacing between two destination lookups. Public
// Nominatim instances allow one request per second.
const DefaultInterval = time.Second

// ErrOriginNotFound aborts a run before any destination is processed.
var ErrOriginNotFound = errors.New("origin address not found")

// Geocoder resolves a free-text address. ok is false whenever no coordinate could be
// obtained, whatever the reason.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (c models.Coordinate, ok bool)
}

type Request struct {
	Origin       string
	Destinations []string
	Strategy     models.DistanceStrategy
}

// Pipeline resolves destinations one at a time, in input order. It keeps no state
// between runs.
type Pipeline struct {
	Geocoder Geocoder
	Router   RouteProvider
	Interval time.Duration
}

func NewPipeline(geocoder Geocoder, router RouteProvider, interval time.Duration) *Pipeline {
	return &Pipeline{Geocoder: geocoder, Router: router, Interval: interval}
}

func (p *Pipeline) limit() rate.Limit {
	if p.Interval <= 0 {
		return rate.Inf
	}
	return rate.Every(p.Interval)
}

// Run geocodes the origin once and then every destination, computing distances with the
// requested strategy. If ctx is cancelled between destinations the records collected so
// far are returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress ProgressCallback, logger LoggerCallback) (*models.Run, error) {
	if p.Geocoder == nil {
		return nil, errors.New("pipeline: no geocoder configured")
	}
	if onProgress == nil {
		onProgress = func(int, int, string) {}
	}
	if logger == nil {
		logger = func(string) {}
	}

	strategy, err := NewStrategy(req.Strategy, p.Router)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		Origin:    req.Origin,
		Strategy:  strategy.Kind(),
		Records:   make([]models.ResultRecord, 0, len(req.Destinations)),
		StartedAt: time.Now(),
	}

	logger(fmt.Sprintf("Finding location for: %s", req.Origin))
	origin, ok := p.Geocoder.Geocode(ctx, req.Origin)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOriginNotFound, req.Origin)
	}
	run.OriginCoord = origin
	logger(fmt.Sprintf("Origin located: %s", origin))

	total := len(req.Destinations)
	limiter := rate.NewLimiter(p.limit(), 1)

	for i, address := range req.Destinations {
		if err := limiter.Wait(ctx); err != nil {
			run.FinishedAt = time.Now()
			return run, fmt.Errorf("run interrupted after %d of %d destinations: %w", i, total, err)
		}

		record := p.resolve(ctx, strategy, origin, address)
		run.Records = append(run.Records, record)

		onProgress(i+1, total, fmt.Sprintf("Processed %d/%d: %s (%s)", i+1, total, address, record.Status))
	}

	run.FinishedAt = time.Now()
	logger(fmt.Sprintf("Completed processing %d addresses in %s", total, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)))

	return run, nil
}

func (p *Pipeline) resolve(ctx context.Context, strategy Strategy, origin models.Coordinate, address string) models.ResultRecord {
	record := models.ResultRecord{
		Address:  address,
		Strategy: strategy.Kind(),
		Status:   models.StatusAddressNotFound,
	}

	dest, ok := p.Geocoder.Geocode(ctx, address)
	if !ok {
		return record
	}

	lat, lon := dest.Lat, dest.Lon
	record.Latitude = &lat
	record.Longitude = &lon

	outcome := strategy.Distance(ctx, origin, dest)
	record.Status = outcome.Status
	if outcome.Status == models.StatusSuccess {
		km := roundKm(outcome.Km)
		record.DistanceKm = &km
	}

	return record
}
