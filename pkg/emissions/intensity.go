// Package emissions enriches normalised power records with grid carbon
// intensity and derives CO2-equivalent emission. Intensity comes from an
// external service with a per-site cache and single-flight fetching; on
// any failure the site's configured default applies, and with neither the
// field stays absent. Enrichment never blocks metric delivery.
package emissions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Typed provider failures. Callers only branch on these to pick log
// detail; every failure degrades to the fallback chain the same way.
var (
	ErrUnavailable   = errors.New("intensity service unavailable")
	ErrRateLimited   = errors.New("intensity service rate limited")
	ErrNoCredentials = errors.New("intensity service credentials not configured")
)

// IntensityProvider fetches grid carbon intensity (gCO2e/kWh) for a
// coordinate pair.
type IntensityProvider interface {
	Intensity(ctx context.Context, latitude, longitude float64) (float64, error)
}

// ElectricityMapConfig configures the hosted intensity API client.
type ElectricityMapConfig struct {
	// BaseURL of the service (default https://api.electricitymap.org).
	BaseURL string

	// APIKey is sent as the auth-token header. Empty disables fetching;
	// records then rely on configured site defaults.
	APIKey string

	// Timeout bounds one fetch (default 15s).
	Timeout time.Duration
}

// ElectricityMapProvider is the production IntensityProvider, backed by
// the electricitymap.org carbon-intensity endpoint.
type ElectricityMapProvider struct {
	client *resty.Client
	apiKey string
}

// NewElectricityMapProvider builds the HTTP provider.
func NewElectricityMapProvider(cfg ElectricityMapConfig) *ElectricityMapProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.electricitymap.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)
	return &ElectricityMapProvider{client: client, apiKey: cfg.APIKey}
}

var _ IntensityProvider = (*ElectricityMapProvider)(nil)

type intensityResponse struct {
	CarbonIntensity float64 `json:"carbonIntensity"`
}

// Intensity fetches the latest carbon intensity for the coordinates.
func (p *ElectricityMapProvider) Intensity(ctx context.Context, latitude, longitude float64) (float64, error) {
	if p.apiKey == "" {
		return 0, ErrNoCredentials
	}

	var payload intensityResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("auth-token", p.apiKey).
		SetQueryParams(map[string]string{
			"lat":                fmt.Sprintf("%v", latitude),
			"lon":                fmt.Sprintf("%v", longitude),
			"emissionFactorType": "direct",
		}).
		SetResult(&payload).
		Get("/v3/carbon-intensity/latest")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return 0, ErrRateLimited
	case resp.IsError():
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	return payload.CarbonIntensity, nil
}
