package models

import (
	"time"

	"github.com/google/uuid"
)

// CollectionJob is the ephemeral unit of work emitted by the scheduler when
// a device becomes due. It is consumed by exactly one worker and discarded
// after a terminal outcome.
type CollectionJob struct {
	// Unique identifier for tracking this collection instance
	CollectionID string

	Device Device

	// ScheduledAt is when the scheduler declared the device due.
	ScheduledAt time.Time

	// Attempt counts terminal retries at the job level. Transient
	// connection retries happen inside the collector and are not
	// reflected here.
	Attempt int
}

// NewCollectionJob builds a job for a due device.
func NewCollectionJob(device Device, at time.Time) CollectionJob {
	return CollectionJob{
		CollectionID: uuid.NewString(),
		Device:       device,
		ScheduledAt:  at,
	}
}

// RawSample is the unparsed output of a single CLI command, tagged with the
// device and collection instance it came from. Owned by the collector until
// handed to the normaliser; never shared.
type RawSample struct {
	// Collection instance this sample belongs to
	CollectionID string `json:"collection_id"`

	// Device hostname the sample was collected from
	Device string `json:"device"`

	// Command is the logical command key (e.g. "show-inventory"); the
	// normaliser that issued the command set keys its parsing off it.
	Command string `json:"command"`

	// Output is the raw CLI response text. Empty output means the
	// command ran but produced nothing usable.
	Output string `json:"output"`

	CollectedAt time.Time `json:"collected_at"`
}
