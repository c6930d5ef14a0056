package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ridedispatch/internal/config"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/model"
)

// ORSClient implements Provider against OpenRouteService.
// Safe for concurrent use.
type ORSClient struct {
	session        *http.Client
	apiKey         string
	baseURL        string
	profile        string
	country        string
	lang           string
	geocodeTimeout time.Duration
	matrixTimeout  time.Duration
	routeTimeout   time.Duration
	cache          *GeocodeCache
	log            zerolog.Logger
}

func NewORSClient(cfg config.ORSConfig) (*ORSClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	return &ORSClient{
		session:        &http.Client{Timeout: 30 * time.Second},
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		profile:        cfg.Profile,
		country:        cfg.Country,
		lang:           cfg.Lang,
		geocodeTimeout: cfg.GeocodeTimeout,
		matrixTimeout:  cfg.MatrixTimeout,
		routeTimeout:   cfg.RouteTimeout,
		cache:          NewGeocodeCache(),
		log:            logging.Component("geo"),
	}, nil
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

// normalize collapses whitespace so cache keys are stable.
func normalize(s string) string { return strings.Join(strings.Fields(s), " ") }

func (c *ORSClient) Resolve(ctx context.Context, address string) (model.GeoPoint, error) {
	addr := normalize(address)
	if addr == "" {
		return model.GeoPoint{}, fmt.Errorf("%w: empty address", ErrNotFound)
	}
	if pt, ok := c.cache.Get(addr); ok {
		return pt, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.geocodeTimeout)
	defer cancel()

	endpoint := c.baseURL + "/geocode/search"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", addr)
		q.Set("boundary.country", c.country)
		q.Set("lang", c.lang)
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("geocode", "error").Inc()
		return model.GeoPoint{}, fmt.Errorf("%w: geocode %q: %v", ErrUnavailable, addr, err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.ProviderCalls.WithLabelValues("geocode", "error").Inc()
		return model.GeoPoint{}, fmt.Errorf("%w: decode geocode response: %v", ErrUnavailable, err)
	}
	if len(decoded.Features) == 0 {
		metrics.ProviderCalls.WithLabelValues("geocode", "miss").Inc()
		c.log.Warn().Str("address", addr).Msg("geocoding returned no features")
		return model.GeoPoint{}, fmt.Errorf("%w: %q", ErrNotFound, addr)
	}
	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return model.GeoPoint{}, fmt.Errorf("%w: invalid coordinates for %q", ErrUnavailable, addr)
	}

	pt := model.GeoPoint{Lat: coords[1], Lng: coords[0]}
	c.cache.Put(addr, pt)
	metrics.ProviderCalls.WithLabelValues("geocode", "ok").Inc()
	return pt, nil
}

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
	Units     string      `json:"units"`
}

type matrixResponse struct {
	Durations [][]float64 `json:"durations"`
	Distances [][]float64 `json:"distances"`
}

func (c *ORSClient) TravelMatrix(ctx context.Context, locations []model.GeoPoint) (Matrix, error) {
	if len(locations) == 0 {
		return Matrix{}, fmt.Errorf("%w: no locations", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.matrixTimeout)
	defer cancel()

	// ORS wants [lng, lat].
	locs := make([][]float64, 0, len(locations))
	for _, p := range locations {
		locs = append(locs, []float64{p.Lng, p.Lat})
	}
	payload, err := json.Marshal(matrixRequest{
		Locations: locs,
		Metrics:   []string{"duration", "distance"},
		Units:     "m",
	})
	if err != nil {
		return Matrix{}, fmt.Errorf("marshal matrix request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/matrix/%s", c.baseURL, c.profile)
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("matrix", "error").Inc()
		return Matrix{}, fmt.Errorf("%w: matrix request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		metrics.ProviderCalls.WithLabelValues("matrix", "error").Inc()
		return Matrix{}, fmt.Errorf("%w: decode matrix response: %v", ErrUnavailable, err)
	}
	if mr.Durations == nil || mr.Distances == nil {
		metrics.ProviderCalls.WithLabelValues("matrix", "error").Inc()
		return Matrix{}, fmt.Errorf("%w: matrix response missing durations or distances", ErrUnavailable)
	}

	metrics.ProviderCalls.WithLabelValues("matrix", "ok").Inc()
	return Matrix{DurationsSec: mr.Durations, DistancesM: mr.Distances}, nil
}

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Units        string      `json:"units"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Duration float64 `json:"duration"`
				Distance float64 `json:"distance"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *ORSClient) Route(ctx context.Context, from, to model.GeoPoint) (RouteInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.routeTimeout)
	defer cancel()

	payload, err := json.Marshal(directionsRequest{
		Coordinates:  [][]float64{{from.Lng, from.Lat}, {to.Lng, to.Lat}},
		Instructions: false,
		Units:        "m",
	})
	if err != nil {
		return RouteInfo{}, fmt.Errorf("marshal directions request: %w", err)
	}

	// The geojson variant returns geometry as raw coordinates instead of
	// an encoded polyline.
	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", c.baseURL, c.profile)
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("route", "error").Inc()
		return RouteInfo{}, fmt.Errorf("%w: directions request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var dr directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		metrics.ProviderCalls.WithLabelValues("route", "error").Inc()
		return RouteInfo{}, fmt.Errorf("%w: decode directions response: %v", ErrUnavailable, err)
	}
	if len(dr.Features) == 0 {
		metrics.ProviderCalls.WithLabelValues("route", "error").Inc()
		return RouteInfo{}, fmt.Errorf("%w: directions returned no routes", ErrUnavailable)
	}

	f := dr.Features[0]
	path := make([]model.GeoPoint, 0, len(f.Geometry.Coordinates))
	for _, c := range f.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		path = append(path, model.GeoPoint{Lat: c[1], Lng: c[0]})
	}

	metrics.ProviderCalls.WithLabelValues("route", "ok").Inc()
	return RouteInfo{
		Path:        path,
		DurationSec: f.Properties.Summary.Duration,
		DistanceM:   f.Properties.Summary.Distance,
	}, nil
}

// Autocomplete proxies address suggestions, deduplicated, max 10.
func (c *ORSClient) Autocomplete(ctx context.Context, query string) ([]string, error) {
	query = normalize(query)
	if query == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.geocodeTimeout)
	defer cancel()

	endpoint := c.baseURL + "/geocode/autocomplete"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", query)
		q.Set("boundary.country", c.country)
		q.Set("lang", c.lang)
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: autocomplete: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode autocomplete response: %v", ErrUnavailable, err)
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		label := strings.TrimSpace(f.Properties.Label)
		if label == "" {
			continue
		}
		// Keep the street and city parts, drop trailing country segments.
		if parts := strings.Split(label, ", "); len(parts) > 2 {
			label = strings.Join(parts[:2], ", ")
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
		if len(out) == 10 {
			break
		}
	}
	return out, nil
}
