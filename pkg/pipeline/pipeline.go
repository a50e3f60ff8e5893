// Package pipeline wires scheduler, collector, normalisers, emissions
// enrichment and the publish sink into one running pass-per-job flow.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/collect"
	"github.com/susgrid/poweff-collector/pkg/emissions"
	"github.com/susgrid/poweff-collector/pkg/models"
	"github.com/susgrid/poweff-collector/pkg/normalise"
	"github.com/susgrid/poweff-collector/pkg/publish"
	"github.com/susgrid/poweff-collector/pkg/schedule"
)

// DefaultShutdownGrace bounds how long in-flight jobs may finish after a
// stop signal before they are abandoned.
const DefaultShutdownGrace = 30 * time.Second

// Options tune the pipeline.
type Options struct {
	// Workers sizes the job worker pool. It should match the collector's
	// connection cap; excess workers only wait on the semaphore.
	Workers int

	// ShutdownGrace is the drain window after cancellation.
	ShutdownGrace time.Duration
}

// Pipeline runs collection passes end to end. Failures in one stage of one
// pass never affect other devices: a pass reports its terminal outcome to
// the scheduler and the device stays scheduled.
type Pipeline struct {
	inventory *models.Inventory
	scheduler *schedule.Scheduler
	collector *collect.Collector
	registry  *normalise.Registry
	processor *emissions.Processor
	sink      publish.Sink
	opts      Options
}

// New assembles a pipeline from already-built stages.
func New(
	inv *models.Inventory,
	scheduler *schedule.Scheduler,
	collector *collect.Collector,
	registry *normalise.Registry,
	processor *emissions.Processor,
	sink publish.Sink,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = collect.DefaultMaxConnections
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	return &Pipeline{
		inventory: inv,
		scheduler: scheduler,
		collector: collector,
		registry:  registry,
		processor: processor,
		sink:      sink,
		opts:      opts,
	}
}

// Run blocks until ctx is cancelled and in-flight jobs have drained or the
// grace period expired.
func (p *Pipeline) Run(ctx context.Context) error {
	jobs := p.scheduler.Run(ctx)

	// Workers outlive ctx by the grace period so in-flight passes can
	// publish before being abandoned.
	graceCtx, cancelGrace := context.WithCancel(context.Background())
	defer cancelGrace()

	group, workerCtx := errgroup.WithContext(graceCtx)
	for i := 0; i < p.opts.Workers; i++ {
		worker := i
		group.Go(func() error {
			p.workerLoop(workerCtx, worker, jobs)
			return nil
		})
	}

	<-ctx.Done()
	klog.Infof("[pipeline] stopping, allowing %s for in-flight jobs", p.opts.ShutdownGrace)

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(p.opts.ShutdownGrace):
		cancelGrace()
		<-done
		return fmt.Errorf("shutdown grace period of %s expired with jobs in flight", p.opts.ShutdownGrace)
	}
}

func (p *Pipeline) workerLoop(ctx context.Context, worker int, jobs <-chan models.CollectionJob) {
	klog.V(2).Infof("[pipeline] worker %d started", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			err := p.runPass(ctx, job)
			p.scheduler.Complete(schedule.Result{
				Job:         job,
				Err:         err,
				CompletedAt: time.Now().UTC(),
			})
		}
	}
}

// runPass executes one collection pass: collect, normalise, enrich,
// publish. No stage holds a lock across another stage's I/O.
func (p *Pipeline) runPass(ctx context.Context, job models.CollectionJob) error {
	device := job.Device

	site, err := p.inventory.SiteFor(device)
	if err != nil {
		return fmt.Errorf("resolving site: %w", err)
	}
	normaliser, ok := p.registry.Get(device.Family)
	if !ok {
		return fmt.Errorf("no normaliser for family %q", device.Family)
	}

	samples, err := p.collector.Collect(ctx, job)
	if err != nil {
		return fmt.Errorf("collecting from %s: %w", device.Name, err)
	}

	result, err := normaliser.Normalise(site, device, samples)
	if err != nil {
		return fmt.Errorf("normalising %s output: %w", device.Name, err)
	}
	for _, warning := range result.Warnings {
		klog.Warningf("[pipeline] %s: %s", device.Name, warning)
	}

	if result.Power != nil {
		p.processor.Enrich(ctx, site, result.Power, device.Collection.Interval)
	}

	envelope := models.MetricEnvelope{
		CollectionID: job.CollectionID,
		Device:       device.Name,
		Site:         site.Name,
		Power:        result.Power,
		PSUs:         result.PSUs,
		Interfaces:   result.Interfaces,
	}
	if envelope.Power == nil && len(envelope.PSUs) == 0 && len(envelope.Interfaces) == 0 {
		klog.Warningf("[pipeline] %s produced no usable records, nothing to publish", device.Name)
		return nil
	}

	if err := p.sink.Publish(ctx, envelope); err != nil {
		return fmt.Errorf("publishing %s envelope: %w", device.Name, err)
	}
	klog.Infof("[pipeline] %s pass %s published (%d psu, %d interface records)",
		device.Name, job.CollectionID, len(envelope.PSUs), len(envelope.Interfaces))
	return nil
}
