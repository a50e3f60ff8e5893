// Package schedule decides when each device is due for collection. One
// goroutine owns the per-device due-time state; workers feed terminal
// outcomes back through Complete and never touch the map themselves.
package schedule

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

var timeNow = time.Now

// Result is a job's terminal outcome reported back by a worker. Success
// and permanent failure re-arm the device identically: next due time is
// computed from completion, not from the original due time.
type Result struct {
	Job         models.CollectionJob
	Err         error
	CompletedAt time.Time
}

// Options tune the scheduler.
type Options struct {
	// QueueSize bounds the job channel; it backs the global in-flight
	// cap together with the collector's connection semaphore. Defaults
	// to 1 (hand jobs over as workers become free).
	QueueSize int
}

type controlMsg struct {
	device  string
	enabled bool
}

// Scheduler emits a lazy, infinite sequence of due collection jobs,
// ordered by due time with device-name tie-breaking. At most one job per
// device is ever in flight.
type Scheduler struct {
	devices map[string]models.Device
	enabled map[string]bool

	nextDue  map[string]time.Time
	inFlight map[string]bool

	jobs       chan models.CollectionJob
	completion chan Result
	control    chan controlMsg
}

// New builds a scheduler over the inventory. Every enabled device starts
// immediately due.
func New(inv *models.Inventory, opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}

	s := &Scheduler{
		devices:    make(map[string]models.Device, len(inv.Devices)),
		enabled:    make(map[string]bool, len(inv.Devices)),
		nextDue:    make(map[string]time.Time, len(inv.Devices)),
		inFlight:   make(map[string]bool, len(inv.Devices)),
		jobs:       make(chan models.CollectionJob, opts.QueueSize),
		completion: make(chan Result, len(inv.Devices)+1),
		control:    make(chan controlMsg, len(inv.Devices)+1),
	}

	now := timeNow()
	for name, device := range s.copyDevices(inv) {
		s.devices[name] = device
		if device.Collection.Enabled {
			s.enabled[name] = true
			s.nextDue[name] = now
			klog.Infof("[scheduler] %s collection scheduled every %s", name, device.Collection.Interval)
		} else {
			klog.Infof("[scheduler] %s collection not enabled, skipping", name)
		}
	}
	return s
}

func (s *Scheduler) copyDevices(inv *models.Inventory) map[string]models.Device {
	devices := make(map[string]models.Device, len(inv.Devices))
	for name, device := range inv.Devices {
		devices[name] = device
	}
	return devices
}

// Run starts the scheduling loop and returns the job sequence. The channel
// is closed when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) <-chan models.CollectionJob {
	go s.loop(ctx)
	return s.jobs
}

// Complete reports a job's terminal outcome. Safe to call from any worker.
func (s *Scheduler) Complete(result Result) {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = timeNow()
	}
	s.completion <- result
}

// SetEnabled changes a device's scheduling eligibility. Disabling lets an
// in-flight job finish but removes future scheduling; enabling makes the
// device immediately due.
func (s *Scheduler) SetEnabled(device string, enabled bool) {
	s.control <- controlMsg{device: device, enabled: enabled}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.jobs)

	for {
		name, due, ok := s.nextPending()
		if !ok {
			// Nothing schedulable: everything disabled or in flight.
			select {
			case <-ctx.Done():
				return
			case result := <-s.completion:
				s.handleCompletion(result)
			case msg := <-s.control:
				s.handleControl(msg)
			}
			continue
		}

		now := timeNow()
		if wait := due.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case result := <-s.completion:
				s.handleCompletion(result)
			case msg := <-s.control:
				s.handleControl(msg)
			case <-timer.C:
			}
			timer.Stop()
			continue
		}

		job := models.NewCollectionJob(s.devices[name], now)
		select {
		case <-ctx.Done():
			return
		case result := <-s.completion:
			s.handleCompletion(result)
		case msg := <-s.control:
			s.handleControl(msg)
		case s.jobs <- job:
			s.inFlight[name] = true
			klog.V(2).Infof("[scheduler] %s triggering collection", name)
		}
	}
}

// nextPending returns the earliest-due enabled device that is not already
// in flight, breaking due-time ties by name for determinism.
func (s *Scheduler) nextPending() (string, time.Time, bool) {
	var (
		bestName string
		bestDue  time.Time
		found    bool
	)
	for name := range s.enabled {
		if s.inFlight[name] {
			continue
		}
		due := s.nextDue[name]
		if !found || due.Before(bestDue) || (due.Equal(bestDue) && name < bestName) {
			bestName, bestDue, found = name, due, true
		}
	}
	return bestName, bestDue, found
}

func (s *Scheduler) handleCompletion(result Result) {
	name := result.Job.Device.Name
	s.inFlight[name] = false

	if result.Err != nil {
		klog.Warningf("[scheduler] %s collection failed: %v", name, result.Err)
	}
	if !s.enabled[name] {
		return
	}
	// Drift-tolerant re-arm: interval counts from completion, so a slow
	// pass shifts the cadence instead of piling up missed ticks.
	interval := s.devices[name].Collection.Interval
	s.nextDue[name] = result.CompletedAt.Add(interval)
	klog.V(2).Infof("[scheduler] %s next due at %s", name, s.nextDue[name].Format(time.RFC3339))
}

func (s *Scheduler) handleControl(msg controlMsg) {
	if _, ok := s.devices[msg.device]; !ok {
		klog.Warningf("[scheduler] ignoring enable change for unknown device %s", msg.device)
		return
	}
	if msg.enabled {
		if !s.enabled[msg.device] {
			s.enabled[msg.device] = true
			s.nextDue[msg.device] = timeNow()
			klog.Infof("[scheduler] %s enabled, immediately due", msg.device)
		}
		return
	}
	if s.enabled[msg.device] {
		delete(s.enabled, msg.device)
		klog.Infof("[scheduler] %s disabled, removed from scheduling", msg.device)
	}
}
