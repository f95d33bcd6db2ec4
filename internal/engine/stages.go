package engine

import (
	"fmt"
	"time"

	"laundry-engine/internal/repository"
)

// StageConfig is one stage graph: an ordered forward-only sequence plus the
// two side-exits (rejected, cancelled) reachable from the first stage only.
// The sequence is data, not code, because admin orders and self-service
// bookings run slightly different graphs through the same machinery.
type StageConfig struct {
	sequence []repository.Status
	index    map[repository.Status]int
	timed    map[repository.Status]time.Duration
}

func NewStageConfig(sequence []repository.Status, durations map[repository.Status]time.Duration) (*StageConfig, error) {
	if len(sequence) < 2 {
		return nil, fmt.Errorf("stage sequence needs at least an initial and a terminal stage")
	}

	index := make(map[repository.Status]int, len(sequence))
	for i, s := range sequence {
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("stage %q appears twice in sequence", s)
		}
		index[s] = i
	}

	timed := make(map[repository.Status]time.Duration, len(durations))
	for s, d := range durations {
		if _, ok := index[s]; !ok {
			return nil, fmt.Errorf("timed stage %q not in sequence", s)
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration for stage %q must be positive", s)
		}
		timed[s] = d
	}

	return &StageConfig{sequence: sequence, index: index, timed: timed}, nil
}

// OrderStages is the graph for orders converted by an admin: no approval
// step, work starts straight from pending. Stage durations are a business
// parameter, so the caller supplies them per stage.
func OrderStages(durations map[repository.Status]time.Duration) *StageConfig {
	cfg, err := NewStageConfig(
		[]repository.Status{
			repository.StatusPending,
			repository.StatusWashing,
			repository.StatusDrying,
			repository.StatusFolding,
			repository.StatusReady,
			repository.StatusCompleted,
		},
		durations,
	)
	if err != nil {
		panic(err)
	}
	return cfg
}

// BookingStages is the graph for self-service bookings, which pass through
// an explicit approval stage before work starts.
func BookingStages(durations map[repository.Status]time.Duration) *StageConfig {
	cfg, err := NewStageConfig(
		[]repository.Status{
			repository.StatusPendingBooking,
			repository.StatusApproved,
			repository.StatusWashing,
			repository.StatusDrying,
			repository.StatusFolding,
			repository.StatusReady,
			repository.StatusCompleted,
		},
		durations,
	)
	if err != nil {
		panic(err)
	}
	return cfg
}

// TimedStageDurations gives every timed stage the same duration, the common
// case when nothing overrides the shared default.
func TimedStageDurations(d time.Duration) map[repository.Status]time.Duration {
	return map[repository.Status]time.Duration{
		repository.StatusWashing: d,
		repository.StatusDrying:  d,
		repository.StatusFolding: d,
	}
}

func (c *StageConfig) First() repository.Status {
	return c.sequence[0]
}

func (c *StageConfig) Contains(s repository.Status) bool {
	_, ok := c.index[s]
	return ok
}

// Next returns the stage after s, or s itself when s is the last stage.
func (c *StageConfig) Next(s repository.Status) (repository.Status, bool) {
	i, ok := c.index[s]
	if !ok || i == len(c.sequence)-1 {
		return s, false
	}
	return c.sequence[i+1], true
}

// Forward reports whether target is strictly ahead of from in the sequence.
func (c *StageConfig) Forward(from, target repository.Status) bool {
	fi, ok := c.index[from]
	if !ok {
		return false
	}
	ti, ok := c.index[target]
	if !ok {
		return false
	}
	return ti > fi
}

// CanSideExit reports whether rejected/cancelled are reachable, which is
// only from the initial stage.
func (c *StageConfig) CanSideExit(from repository.Status) bool {
	return from == c.sequence[0]
}

func (c *StageConfig) Duration(s repository.Status) (time.Duration, bool) {
	d, ok := c.timed[s]
	return d, ok
}
