package player

import "time"

// Status is the externally observed lifecycle state of a Player.
type Status int

const (
	Idle Status = iota
	Waiting
	Playing
	Paused
	Finished
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Waiting:
		return "WAITING"
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// transitions lists every edge the state machine may take.
var transitions = map[Status][]Status{
	Idle:     {Waiting},
	Waiting:  {Playing, Paused, Finished, Idle},
	Playing:  {Paused, Waiting, Finished, Idle},
	Paused:   {Playing, Waiting, Finished, Idle},
	Finished: {Waiting, Idle},
}

// CanTransition reports whether from → to is a valid edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BufferState describes the decoded audio queued ahead of the clock.
type BufferState struct {
	Filled        time.Duration
	LowWatermark  time.Duration
	HighWatermark time.Duration
}

// Health returns the fill level as a percentage of the high watermark.
func (b BufferState) Health() int {
	if b.HighWatermark <= 0 {
		return 0
	}
	h := int(b.Filled * 100 / b.HighWatermark)
	if h > 100 {
		h = 100
	}
	return h
}
