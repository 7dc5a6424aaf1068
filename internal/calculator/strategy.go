package calculator

import (
	"context"
	"fmt"

	"address-distance/internal/models"
)

// Strategy computes the distance between an origin and one destination.
// A strategy is picked once per run and applied to every destination.
type Strategy interface {
	Kind() models.DistanceStrategy
	Distance(ctx context.Context, origin, dest models.Coordinate) models.DistanceOutcome
}

// RouteProvider resolves a road-network distance in kilometers.
// ok is false whenever no route could be obtained, whatever the reason.
type RouteProvider interface {
	Route(ctx context.Context, origin, dest models.Coordinate) (km float64, ok bool)
}

type straightLine struct{}

func (straightLine) Kind() models.DistanceStrategy { return models.StraightLine }

func (straightLine) Distance(_ context.Context, origin, dest models.Coordinate) models.DistanceOutcome {
	return models.DistanceOutcome{Km: Haversine(origin, dest), Status: models.StatusSuccess}
}

type routed struct {
	router RouteProvider
}

func (routed) Kind() models.DistanceStrategy { return models.RoutedDistance }

func (r routed) Distance(ctx context.Context, origin, dest models.Coordinate) models.DistanceOutcome {
	km, ok := r.router.Route(ctx, origin, dest)
	if !ok {
		return models.DistanceOutcome{Status: models.StatusRouteNotFound}
	}
	return models.DistanceOutcome{Km: km, Status: models.StatusSuccess}
}

// NewStrategy returns the implementation for kind. router may be nil for StraightLine.
func NewStrategy(kind models.DistanceStrategy, router RouteProvider) (Strategy, error) {
	switch kind {
	case models.StraightLine:
		return straightLine{}, nil
	case models.RoutedDistance:
		if router == nil {
			return nil, fmt.Errorf("strategy %s: no route provider configured", kind)
		}
		return routed{router: router}, nil
	}
	return nil, fmt.Errorf("unknown distance strategy %q", kind)
}
