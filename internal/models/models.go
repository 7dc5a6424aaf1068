package models

import (
	"fmt"
	"strings"
	"time"
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type DistanceStrategy string

const (
	StraightLine   DistanceStrategy = "straight_line"
	RoutedDistance DistanceStrategy = "routed"
)

// Label is the human readable name used in the "Distance Type" column.
func (s DistanceStrategy) Label() string {
	switch s {
	case StraightLine:
		return "Straight Line (Haversine)"
	case RoutedDistance:
		return "Actual Route Distance"
	}
	return string(s)
}

// ParseStrategy accepts the strategy ids, their labels and a few short aliases.
func ParseStrategy(s string) (DistanceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "straight", "straight_line", "haversine", "straight line (haversine)":
		return StraightLine, nil
	case "route", "routed", "routing", "driving", "actual route distance":
		return RoutedDistance, nil
	}
	return "", fmt.Errorf("unknown distance strategy %q", s)
}

type Status string

const (
	StatusSuccess         Status = "Success"
	StatusAddressNotFound Status = "Address not found"
	StatusRouteNotFound   Status = "Route not found"
)

// DistanceOutcome is what a distance strategy yields for one origin/destination pair.
// Km is only meaningful when Status is StatusSuccess.
type DistanceOutcome struct {
	Km     float64
	Status Status
}

type ResultRecord struct {
	Address    string           `json:"address"`
	DistanceKm *float64         `json:"distance_km"`
	Strategy   DistanceStrategy `json:"distance_type"`
	Status     Status           `json:"status"`
	Latitude   *float64         `json:"latitude"`
	Longitude  *float64         `json:"longitude"`
}

func (r ResultRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Run is the outcome of one pipeline invocation. Records keep the input order.
type Run struct {
	Origin      string           `json:"origin"`
	OriginCoord Coordinate       `json:"origin_coord"`
	Strategy    DistanceStrategy `json:"strategy"`
	Records     []ResultRecord   `json:"records"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}
