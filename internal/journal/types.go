package journal

import "github.com/ChuLiYu/roadcrew/pkg/types"

// ============================================================================
// Journal Type Definitions
// Responsibility: Define the records written to the job journal
// ============================================================================

// EventType defines journal event types
type EventType string

const (
	EventSession   EventType = "SESSION"   // Simulation started
	EventIssued    EventType = "ISSUED"    // Player click created a job
	EventEmitted   EventType = "EMITTED"   // Machine created a job
	EventClaimed   EventType = "CLAIMED"   // Machine took a job from the queue
	EventCompleted EventType = "COMPLETED" // Machine finished and released a job
	EventRequeued  EventType = "REQUEUED"  // Machine put a job back
	EventTransform EventType = "TRANSFORM" // Terrain cell changed variant
)

// Event represents one journal record
type Event struct {
	Seq       uint64    `json:"seq"`                 // Event sequence number (monotonically increasing)
	Session   string    `json:"session"`             // Session id of the writer
	Type      EventType `json:"type"`                // Event type
	Tick      uint64    `json:"tick"`                // Simulation tick the event happened in
	Timestamp int64     `json:"timestamp"`           // Unix millisecond timestamp
	Machine   int       `json:"machine,omitempty"`   // Machine id (job events)
	Archetype string    `json:"archetype,omitempty"` // Machine archetype (job events)
	Job       *JobRef   `json:"job,omitempty"`       // Job involved
	Cell      *CellRef  `json:"cell,omitempty"`      // Cell involved (transform events)
	Checksum  uint32    `json:"checksum"`            // CRC32 checksum
}

// JobRef is the journal form of a job.
type JobRef struct {
	Kind  string `json:"kind"`
	I     int    `json:"i"`
	J     int    `json:"j"`
	Param int    `json:"param"`
	Seq   uint64 `json:"seq"`
}

// CellRef is the journal form of a terrain transformation.
type CellRef struct {
	I    int    `json:"i"`
	J    int    `json:"j"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NewJobRef converts a queue job.
func NewJobRef(job *types.Job) *JobRef {
	if job == nil {
		return nil
	}
	return &JobRef{Kind: job.Kind.String(), I: job.I, J: job.J, Param: job.Param, Seq: job.Seq}
}

// EventHandler is the function type for processing journal events
// during Replay. Returning an error stops the replay.
type EventHandler func(event Event) error
