package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
	StageJobCanceled Stage = "JOB_CANCELED"
	StageProbe       Stage = "PROBE"
	StageSaved       Stage = "SAVED"
	StageBranchDone  Stage = "BRANCH_DONE"
)

// Event captures a single step of a scrape job.
type Event struct {
	// JobID is the 16-byte form of the job UUID.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Year is the two-digit admission year being scraped.
	Year   string
	Branch string
	USN    string
	// Outcome is the probe classification (found, not_found, transient).
	Outcome string
	// Path is where a saved artifact lives.
	Path string
	// Processed is the job-wide processed count at the time of the event.
	Processed int64
	// Dur is the probe latency or, for job completions, the job runtime.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StageJobCanceled:
	case StageProbe:
		if e.USN == "" || e.Outcome == "" {
			return errors.New("probe requires usn and outcome")
		}
	case StageSaved:
		if e.USN == "" || e.Path == "" {
			return errors.New("saved requires usn and path")
		}
	case StageBranchDone:
		if e.Branch == "" {
			return errors.New("branch done requires branch")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID back to a uuid.UUID.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
