package emissions

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

const (
	// DefaultFreshness is how long a fetched intensity stays valid per
	// site before the next applicable record triggers a refetch.
	DefaultFreshness = time.Hour

	cleanupInterval = 10 * time.Minute
)

// Processor resolves a CO2 intensity per record and computes the derived
// emission. The cache is the only state shared across workers; the
// single-flight group guarantees one in-flight fetch per site within the
// freshness window, with concurrent requesters awaiting its result.
type Processor struct {
	provider IntensityProvider
	cache    *gocache.Cache
	group    singleflight.Group
}

// NewProcessor builds a processor over the given provider. freshness <= 0
// selects the default window.
func NewProcessor(provider IntensityProvider, freshness time.Duration) *Processor {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Processor{
		provider: provider,
		cache:    gocache.New(freshness, cleanupInterval),
	}
}

// Enrich fills CO2Intensity and CO2Emission on the record in place.
// interval is the device's collection interval, the time span one sample
// stands for when integrating power into energy. Failures only degrade:
// the record is always returned deliverable.
func (p *Processor) Enrich(ctx context.Context, site models.Site, record *models.PowerMetricRecord, interval time.Duration) {
	intensity := p.resolve(ctx, site)
	if intensity == nil {
		return
	}
	record.CO2Intensity = intensity

	// Emission (gCO2e) = energy (kWh) x intensity (gCO2e/kWh). Power is
	// in watts; absent power means absent emission, never zero.
	if record.PowerIn != nil {
		energyKWh := *record.PowerIn / 1000 * interval.Hours()
		record.CO2Emission = models.Float(energyKWh * *intensity)
	}
}

// resolve applies the fallback chain: fresh fetch (cached, single-flight)
// then the site's configured default, then absent.
func (p *Processor) resolve(ctx context.Context, site models.Site) *float64 {
	if v, err := p.fetch(ctx, site); err == nil {
		return &v
	} else if !errorIsQuiet(err) {
		klog.Warningf("[emissions] %s intensity fetch failed: %v", site.Name, err)
	}

	if site.AvgCO2Intensity != nil {
		klog.V(2).Infof("[emissions] %s using configured default intensity", site.Name)
		v := *site.AvgCO2Intensity
		return &v
	}
	klog.V(2).Infof("[emissions] %s no default intensity configured, leaving absent", site.Name)
	return nil
}

func (p *Processor) fetch(ctx context.Context, site models.Site) (float64, error) {
	if cached, ok := p.cache.Get(site.Name); ok {
		return cached.(float64), nil
	}

	v, err, _ := p.group.Do(site.Name, func() (interface{}, error) {
		// Re-check under the flight: a concurrent fetch may have
		// populated the cache while this caller was queued.
		if cached, ok := p.cache.Get(site.Name); ok {
			return cached.(float64), nil
		}
		intensity, err := p.provider.Intensity(ctx, site.Latitude, site.Longitude)
		if err != nil {
			return 0.0, err
		}
		p.cache.SetDefault(site.Name, intensity)
		return intensity, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// errorIsQuiet filters expected conditions out of the warning log.
func errorIsQuiet(err error) bool {
	return errors.Is(err, ErrNoCredentials)
}
