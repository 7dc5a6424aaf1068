package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"address-distance/internal/httpclient"
	"address-distance/internal/models"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// Nominatim resolves free-text addresses with an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	baseURL    string
	httpClient *http.Client
}

func NewNominatim(baseURL string, client *http.Client) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}

	return &Nominatim{baseURL: baseURL, httpClient: client}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for address. Any failure is logged and reported as
// ok == false.
func (n *Nominatim) Geocode(ctx context.Context, address string) (models.Coordinate, bool) {
	c, err := n.lookup(ctx, address)
	if err != nil {
		log.Printf("geocode %q failed kind=%s: %v", address, httpclient.Kind(err), err)
		return models.Coordinate{}, false
	}

	return c, true
}

func (n *Nominatim) lookup(ctx context.Context, address string) (models.Coordinate, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", address)
	params.Set("limit", "1")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	if err := httpclient.CheckStatus(resp); err != nil {
		return models.Coordinate{}, err
	}
	defer resp.Body.Close()

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return models.Coordinate{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(results) == 0 {
		return models.Coordinate{}, fmt.Errorf("no results for %q: %w", address, httpclient.ErrNoMatch)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parsing latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("parsing longitude %q: %w", results[0].Lon, err)
	}

	c := models.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return models.Coordinate{}, fmt.Errorf("coordinate out of range: %s", c)
	}

	return c, nil
}
