package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susgrid/poweff-collector/pkg/models"
)

func testInventory(interval time.Duration, names ...string) *models.Inventory {
	inv := &models.Inventory{
		Sites:   map[string]models.Site{"lab": {Name: "lab", Timezone: "UTC"}},
		Devices: make(map[string]models.Device, len(names)),
	}
	for _, name := range names {
		inv.Devices[name] = models.Device{
			Name:       name,
			Site:       "lab",
			Family:     models.FamilyCat9300,
			Collection: models.CollectionPolicy{Enabled: true, Interval: interval},
		}
	}
	return inv
}

func recvJob(t *testing.T, jobs <-chan models.CollectionJob, within time.Duration) models.CollectionJob {
	t.Helper()
	select {
	case job, ok := <-jobs:
		require.True(t, ok, "job channel closed unexpectedly")
		return job
	case <-time.After(within):
		t.Fatal("no job emitted in time")
		return models.CollectionJob{}
	}
}

func assertNoJob(t *testing.T, jobs <-chan models.CollectionJob, within time.Duration) {
	t.Helper()
	select {
	case job := <-jobs:
		t.Fatalf("unexpected job for %s", job.Device.Name)
	case <-time.After(within):
	}
}

func TestSchedulerTieBreakByName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(testInventory(time.Minute, "charlie", "alpha", "bravo"), Options{})
	jobs := s.Run(ctx)

	// All three start due at the same instant; emission order is by name.
	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, recvJob(t, jobs, time.Second).Device.Name)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, got)
}

func TestSchedulerNoOverlapPerDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(testInventory(time.Millisecond, "sw1"), Options{})
	jobs := s.Run(ctx)

	job := recvJob(t, jobs, time.Second)
	assert.Equal(t, "sw1", job.Device.Name)
	assert.NotEmpty(t, job.CollectionID)

	// Interval long expired, but the first job never completed.
	assertNoJob(t, jobs, 50*time.Millisecond)

	s.Complete(Result{Job: job, CompletedAt: time.Now()})
	next := recvJob(t, jobs, time.Second)
	assert.NotEqual(t, job.CollectionID, next.CollectionID)
}

func TestSchedulerReArmsFromCompletionTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := 60 * time.Millisecond
	s := New(testInventory(interval, "sw1"), Options{})
	jobs := s.Run(ctx)

	job := recvJob(t, jobs, time.Second)

	// Completion long after the original due time shifts the cadence
	// instead of firing immediately to catch up.
	completed := time.Now()
	s.Complete(Result{Job: job, CompletedAt: completed})

	next := recvJob(t, jobs, time.Second)
	assert.GreaterOrEqual(t, time.Since(completed), interval-5*time.Millisecond,
		"job %s emitted before the interval elapsed", next.CollectionID)
}

func TestSchedulerFailedJobStaysScheduled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(testInventory(time.Millisecond, "sw1"), Options{})
	jobs := s.Run(ctx)

	job := recvJob(t, jobs, time.Second)
	s.Complete(Result{Job: job, Err: errors.New("authentication failed"), CompletedAt: time.Now()})

	// A permanent failure re-arms exactly like success.
	recvJob(t, jobs, time.Second)
}

func TestSchedulerDisableAndEnable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(testInventory(time.Millisecond, "sw1"), Options{})
	jobs := s.Run(ctx)

	job := recvJob(t, jobs, time.Second)
	s.SetEnabled("sw1", false)
	s.Complete(Result{Job: job, CompletedAt: time.Now()})

	// Disabled devices are not re-armed on completion.
	assertNoJob(t, jobs, 50*time.Millisecond)

	s.SetEnabled("sw1", true)
	recvJob(t, jobs, time.Second)
}

func TestSchedulerDisabledAtLoadNotScheduled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := testInventory(time.Millisecond, "sw1", "sw2")
	off := inv.Devices["sw2"]
	off.Collection.Enabled = false
	inv.Devices["sw2"] = off

	s := New(inv, Options{})
	jobs := s.Run(ctx)

	job := recvJob(t, jobs, time.Second)
	assert.Equal(t, "sw1", job.Device.Name)
	assertNoJob(t, jobs, 50*time.Millisecond)
}

func TestSchedulerClosesChannelOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := New(testInventory(time.Minute, "sw1"), Options{})
	jobs := s.Run(ctx)
	recvJob(t, jobs, time.Second)

	cancel()
	select {
	case _, ok := <-jobs:
		assert.False(t, ok, "channel should be closed, not deliver jobs")
	case <-time.After(time.Second):
		t.Fatal("job channel not closed after cancellation")
	}
}
