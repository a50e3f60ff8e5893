// Package collect executes collection jobs against devices: open a
// connection, run the family's command set, hand back raw samples. Each
// job is an isolated failure domain; nothing here may affect another
// device's schedule.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

const (
	// DefaultMaxConnections bounds simultaneously open device
	// connections across all workers.
	DefaultMaxConnections = 4

	// DefaultMaxAttempts bounds retries for transient failures.
	DefaultMaxAttempts = 3

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 2 * time.Second
)

// Session is one open connection to a device, able to run CLI commands.
type Session interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// CommandRunner abstracts the connection boundary. The concrete transport
// (SSH) lives in pkg/util; tests substitute fakes.
type CommandRunner interface {
	Open(ctx context.Context, device models.Device) (Session, error)
}

// CommandSource supplies the family-specific command set to execute. The
// normaliser registry implements it: the component that parses the output
// decides which commands produce it.
type CommandSource interface {
	Commands(family models.Family) (map[string]string, bool)
}

// Options tune the collector. Zero values fall back to defaults.
type Options struct {
	MaxConnections int
	MaxAttempts    int
	BackoffBase    time.Duration
}

// Collector runs collection jobs with a global connection bound and a
// bounded retry loop for transient failures.
type Collector struct {
	runner   CommandRunner
	commands CommandSource
	sem      chan struct{}

	maxAttempts int
	backoffBase time.Duration
}

// New builds a collector over the given transport and command source.
func New(runner CommandRunner, commands CommandSource, opts Options) *Collector {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	return &Collector{
		runner:      runner,
		commands:    commands,
		sem:         make(chan struct{}, opts.MaxConnections),
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
	}
}

// Collect executes one job and returns the raw samples, one per command.
// Transient failures are retried up to the attempt bound with exponential
// backoff; permanent failures return immediately. The returned error is
// always classified (TransientError or PermanentError).
func (c *Collector) Collect(ctx context.Context, job models.CollectionJob) ([]models.RawSample, error) {
	device := job.Device

	commands, ok := c.commands.Commands(device.Family)
	if !ok {
		return nil, Permanent(fmt.Errorf("no command set for family %q", device.Family))
	}

	// Global connection cap; waiting here delays this device only.
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, Transient(ctx.Err())
	}
	defer func() { <-c.sem }()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		samples, err := c.collectOnce(ctx, job, commands)
		if err == nil {
			return samples, nil
		}
		lastErr = classify(err)

		if IsPermanent(lastErr) {
			klog.Errorf("[collector] %s permanent failure: %v", device.Name, lastErr)
			return nil, lastErr
		}
		klog.Warningf("[collector] %s attempt %d/%d failed: %v", device.Name, attempt, c.maxAttempts, lastErr)

		if attempt < c.maxAttempts {
			if err := sleepContext(ctx, c.backoff(attempt)); err != nil {
				return nil, Transient(err)
			}
		}
	}
	return nil, lastErr
}

// backoff computes the delay before the next attempt: base doubled per
// completed attempt.
func (c *Collector) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (c *Collector) collectOnce(ctx context.Context, job models.CollectionJob, commands map[string]string) ([]models.RawSample, error) {
	device := job.Device

	session, err := c.runner.Open(ctx, device)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	klog.V(2).Infof("[collector] %s connected", device.Name)

	// Deterministic command order keeps per-pass output stable.
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	samples := make([]models.RawSample, 0, len(keys))
	failures := 0
	for _, key := range keys {
		command := commands[key]
		output, err := c.runCommand(ctx, session, device, command)
		if err != nil {
			// One failing command degrades the pass; the rest still run.
			klog.Warningf("[collector] %s command %q failed: %v", device.Name, command, err)
			failures++
			output = ""
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		samples = append(samples, models.RawSample{
			CollectionID: job.CollectionID,
			Device:       device.Name,
			Command:      key,
			Output:       output,
			CollectedAt:  time.Now().UTC(),
		})
	}

	if failures == len(keys) {
		return nil, fmt.Errorf("all %d commands failed", len(keys))
	}
	return samples, nil
}

// runCommand executes one command, falling back to the non-admin form when
// an "admin ..." command yields an empty or deprecated-warning result.
func (c *Collector) runCommand(ctx context.Context, session Session, device models.Device, command string) (string, error) {
	output, err := session.Run(ctx, command)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(command, "admin ") && isEmptyShowResult(output) {
		alternate := strings.TrimPrefix(command, "admin ")
		klog.V(2).Infof("[collector] %s retrying as %q", device.Name, alternate)
		return session.Run(ctx, alternate)
	}
	return output, nil
}

// isEmptyShowResult reports whether a show command produced no meaningful
// data, typically the deprecated "admin show ..." form.
func isEmptyShowResult(output string) bool {
	lower := strings.ToLower(output)
	if len(lower) < 150 {
		return true
	}
	return strings.Contains(lower, "warning") && strings.Contains(lower, "deprecated")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
