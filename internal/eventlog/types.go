package eventlog

import "github.com/spits-runtime/spits/pkg/types"

// EventType tags what happened to a task at a given point in the
// coordinator's generator/collector loops. This is an append-only audit
// trail, not a recovery mechanism: the pending-task map is explicitly
// process-lifetime-only (destroyed on coordinator exit per the
// specification's data model), so Replay here is for offline inspection,
// never for reconstructing in-memory state after a restart.
type EventType string

const (
	EventDispatched EventType = "DISPATCHED"
	EventResent     EventType = "RESENT"
	EventCommitted  EventType = "COMMITTED"
	EventDiscarded  EventType = "DISCARDED"
	EventCommitErr  EventType = "COMMIT_ERROR"
)

// Event is one audit log record.
type Event struct {
	Seq       uint64       `json:"seq"`
	Type      EventType    `json:"type"`
	TaskID    types.TaskID `json:"task_id"`
	RunID     types.RunID  `json:"run_id"`
	Status    int64        `json:"status,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Timestamp int64        `json:"timestamp"`
	Checksum  uint32       `json:"checksum"`
}

// EventHandler processes one event during Replay.
type EventHandler func(event Event) error
