// poweffd collects power and sustainability metrics from network devices
// over SSH, normalises them into canonical records, enriches them with
// grid carbon intensity, and publishes them to a message broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/collect"
	"github.com/susgrid/poweff-collector/pkg/emissions"
	"github.com/susgrid/poweff-collector/pkg/inventory"
	"github.com/susgrid/poweff-collector/pkg/normalise"
	"github.com/susgrid/poweff-collector/pkg/pipeline"
	"github.com/susgrid/poweff-collector/pkg/publish"
	"github.com/susgrid/poweff-collector/pkg/schedule"
	"github.com/susgrid/poweff-collector/pkg/secrets"
)

// settings mirrors the daemon sections of the config file. Sites and
// devices live in the same file and are loaded by pkg/inventory.
type settings struct {
	Collector struct {
		MaxConnections int           `mapstructure:"max_connections"`
		MaxAttempts    int           `mapstructure:"max_attempts"`
		BackoffBase    time.Duration `mapstructure:"backoff_base"`
	} `mapstructure:"collector"`

	Emissions struct {
		BaseURL string `mapstructure:"base_url"`
		// APIKeyRef is a secret reference (env:NAME, file:/path or a
		// literal). The resolved key is never logged.
		APIKeyRef string        `mapstructure:"api_key_ref"`
		Timeout   time.Duration `mapstructure:"timeout"`
		Freshness time.Duration `mapstructure:"freshness"`
	} `mapstructure:"emissions"`

	Publisher publish.Config `mapstructure:"publisher"`

	Pipeline struct {
		Workers       int           `mapstructure:"workers"`
		ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	} `mapstructure:"pipeline"`
}

func loadSettings(path string) (*settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &s, nil
}

func run(configPath string) error {
	cfg, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	inv, err := inventory.Load(configPath)
	if err != nil {
		return err
	}
	klog.Infof("[poweffd] loaded %d sites, %d devices from %s", len(inv.Sites), len(inv.Devices), configPath)

	resolver := secrets.NewResolver()

	apiKey := ""
	if cfg.Emissions.APIKeyRef != "" {
		apiKey, err = resolver.Resolve(cfg.Emissions.APIKeyRef)
		if err != nil {
			return fmt.Errorf("resolving emissions API key: %w", err)
		}
	}
	provider := emissions.NewElectricityMapProvider(emissions.ElectricityMapConfig{
		BaseURL: cfg.Emissions.BaseURL,
		APIKey:  apiKey,
		Timeout: cfg.Emissions.Timeout,
	})
	processor := emissions.NewProcessor(provider, cfg.Emissions.Freshness)

	registry := normalise.NewRegistry()
	collector := collect.New(collect.NewSSHRunner(resolver), registry, collect.Options{
		MaxConnections: cfg.Collector.MaxConnections,
		MaxAttempts:    cfg.Collector.MaxAttempts,
		BackoffBase:    cfg.Collector.BackoffBase,
	})

	sink, err := publish.NewSink(cfg.Publisher)
	if err != nil {
		return err
	}
	retrying := publish.NewRetryingSink(sink, cfg.Publisher.MaxAttempts, cfg.Publisher.BackoffBase)
	defer retrying.Close()

	go func() {
		for failure := range retrying.Failures() {
			klog.Errorf("[poweffd] envelope for %s lost after %d attempts: %v",
				failure.Envelope.Device, failure.Attempts, failure.Err)
		}
	}()

	scheduler := schedule.New(inv, schedule.Options{})
	pipe := pipeline.New(inv, scheduler, collector, registry, processor, retrying, pipeline.Options{
		Workers:       cfg.Pipeline.Workers,
		ShutdownGrace: cfg.Pipeline.ShutdownGrace,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	klog.Info("[poweffd] pipeline running, press Ctrl+C to stop")
	if err := pipe.Run(ctx); err != nil {
		return err
	}
	klog.Info("[poweffd] stopped")
	return nil
}

func main() {
	configPath := flag.String("config", "config/poweff.yaml", "path to the configuration file")
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if err := run(*configPath); err != nil {
		klog.Exitf("[poweffd] %v", err)
	}
}
