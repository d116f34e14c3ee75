package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"loop-drive/internal/domain"
)

var ErrNoRoute = errors.New("no route found")

// Router computes a driving route between two points.
type Router interface {
	Route(ctx context.Context, origin, destination domain.LatLng) (*domain.RouteSnapshot, error)
}

// MapboxRouter talks to the Mapbox Directions API with a driving profile,
// full-overview GeoJSON geometry and distance annotations.
type MapboxRouter struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewMapboxRouter(baseURL, token string) *MapboxRouter {
	return &MapboxRouter{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type directionsResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

func (m *MapboxRouter) Route(ctx context.Context, origin, destination domain.LatLng) (*domain.RouteSnapshot, error) {
	url := fmt.Sprintf("%s/%f,%f;%f,%f?steps=true&geometries=geojson&overview=full&annotations=distance&access_token=%s",
		m.baseURL, origin.Lng, origin.Lat, destination.Lng, destination.Lat, m.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions error (%d): %s", resp.StatusCode, string(body))
	}

	var data directionsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parse directions response: %w", err)
	}
	if len(data.Routes) == 0 {
		return nil, ErrNoRoute
	}

	best := data.Routes[0]
	geometry := make([]domain.LatLng, 0, len(best.Geometry.Coordinates))
	for _, c := range best.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		geometry = append(geometry, domain.LatLng{Lat: c[1], Lng: c[0]})
	}

	return &domain.RouteSnapshot{
		Origin:      origin,
		Destination: destination,
		Geometry:    geometry,
		DistanceM:   best.Distance,
		ComputedAt:  time.Now(),
	}, nil
}
