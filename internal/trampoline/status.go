package trampoline

import "time"

// StatusKind identifies a scheduler notification.
type StatusKind uint8

const (
	StatusSpawned StatusKind = iota + 1
	StatusFinished
	StatusFired
	StatusRound
)

func (k StatusKind) String() string {
	switch k {
	case StatusSpawned:
		return "spawned"
	case StatusFinished:
		return "finished"
	case StatusFired:
		return "fired"
	case StatusRound:
		return "round"
	default:
		return "unknown"
	}
}

// Status is sent on Config.Status as the scheduler works. Sends never block;
// a full channel drops notifications.
type Status struct {
	Kind    StatusKind
	Round   uint64
	TaskID  TaskID
	Task    string
	Live    int
	Resumed int
	Time    time.Time
}

// RoundStats summarises one scheduling round.
type RoundStats struct {
	Round    uint64
	Resumed  int
	Finished int
	Fired    int
	Spawned  int
	Live     int
	// Ready counts tasks that will be resumed next round.
	Ready int
}

// TaskState is the serialisable view of one task.
type TaskState struct {
	ID      TaskID `msgpack:"id" json:"id"`
	Name    string `msgpack:"name" json:"name"`
	Depth   int    `msgpack:"depth" json:"depth"`
	Waits   int    `msgpack:"waits" json:"waits"`
	Pending bool   `msgpack:"pending" json:"pending"`
	Resumes uint64 `msgpack:"resumes" json:"resumes"`
}

// Snapshot is a point-in-time copy of the scheduler state, safe to read from
// other goroutines.
type Snapshot struct {
	RunID   string      `msgpack:"run_id" json:"run_id"`
	Round   uint64      `msgpack:"round" json:"round"`
	ClockMs uint64      `msgpack:"clock_ms" json:"clock_ms"`
	Time    time.Time   `msgpack:"time" json:"time"`
	Tasks   []TaskState `msgpack:"tasks" json:"tasks"`
}
