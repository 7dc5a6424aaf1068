package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"address-distance/internal/httpclient"
	"address-distance/internal/models"
)

const (
	DefaultOSRMURL = "https://router.project-osrm.org/route/v1"
	profileDriving = "driving"
)

// OSRM computes driving distances with the OSRM route service.
type OSRM struct {
	baseURL    string
	httpClient *http.Client
}

func NewOSRM(baseURL string, client *http.Client) *OSRM {
	if baseURL == "" {
		baseURL = DefaultOSRMURL
	}
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}

	return &OSRM{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// Route returns the shortest driving distance in kilometers. Any failure is logged and
// reported as ok == false.
func (o *OSRM) Route(ctx context.Context, origin, dest models.Coordinate) (float64, bool) {
	km, err := o.route(ctx, origin, dest)
	if err != nil {
		log.Printf("route %s -> %s failed kind=%s: %v", origin, dest, httpclient.Kind(err), err)
		return 0, false
	}

	return km, true
}

func formatCoord(c models.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

func (o *OSRM) route(ctx context.Context, origin, dest models.Coordinate) (float64, error) {
	params := url.Values{}
	params.Set("overview", "false")
	params.Set("geometries", "geojson")

	endpoint := fmt.Sprintf("%s/%s/%s;%s?%s", o.baseURL, profileDriving, formatCoord(origin), formatCoord(dest), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("routing request failed: %w", err)
	}
	if err := httpclient.CheckStatus(resp); err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}

	if rr.Code != "Ok" {
		return 0, fmt.Errorf("osrm code %q %s: %w", rr.Code, rr.Message, httpclient.ErrNoMatch)
	}

	if len(rr.Routes) == 0 {
		return 0, fmt.Errorf("osrm returned no routes: %w", httpclient.ErrNoMatch)
	}

	return rr.Routes[0].Distance / 1000, nil
}
