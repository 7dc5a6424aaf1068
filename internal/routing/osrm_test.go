package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"address-distance/internal/httpclient"
	"address-distance/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	origin = models.Coordinate{Lat: 18.969, Lon: 72.8205}
	dest   = models.Coordinate{Lat: 18.922, Lon: 72.8347}
)

func newTestOSRM(t *testing.T, handler http.HandlerFunc) *OSRM {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Options{UserAgent: "address-distance/test", Timeout: 200 * time.Millisecond})

	return NewOSRM(srv.URL+"/route/v1/", client)
}

func TestRouteSuccess(t *testing.T) {
	var path, overview, geometries, userAgent string
	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		overview = r.URL.Query().Get("overview")
		geometries = r.URL.Query().Get("geometries")
		userAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":6543.2,"duration":900.1},{"distance":7000,"duration":800}]}`)
	})

	km, ok := o.Route(context.Background(), origin, dest)
	require.True(t, ok)
	assert.InDelta(t, 6.5432, km, 1e-9)

	assert.Equal(t, "/route/v1/driving/72.8205,18.969;72.8347,18.922", path)
	assert.Equal(t, "false", overview)
	assert.Equal(t, "geojson", geometries)
	assert.Equal(t, "address-distance/test", userAgent)
}

func TestRouteFailuresAreAbsent(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "no route code",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"code":"NoRoute","message":"Impossible route between points","routes":[]}`)
			},
		},
		{
			name: "ok without routes",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"code":"Ok","routes":[]}`)
			},
		},
		{
			name: "bad request status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"code":"InvalidQuery"}`)
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `<html>gateway</html>`)
			},
		},
		{
			name: "distance not a number",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":"far"}]}`)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOSRM(t, tt.handler)

			km, ok := o.Route(context.Background(), origin, dest)
			assert.False(t, ok)
			assert.Zero(t, km)
		})
	}
}

func TestNewOSRMDefaults(t *testing.T) {
	o := NewOSRM("", nil)
	assert.Equal(t, DefaultOSRMURL, o.baseURL)
	assert.Equal(t, httpclient.DefaultTimeout, o.httpClient.Timeout)
}
