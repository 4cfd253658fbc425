package models

// StreamPhase is the lifecycle phase of the singleton stream.
type StreamPhase string

// Stream phases. Transitions are restricted to STOPPED<->IDLE and IDLE<->SPEAK.
const (
	PhaseStopped StreamPhase = "STOPPED"
	PhaseIdle    StreamPhase = "IDLE"
	PhaseSpeak   StreamPhase = "SPEAK"
)

// StreamSnapshot is a point-in-time copy of the stream state.
//
// Invariants: phase==STOPPED iff SessionID=="" and PresetID=="";
// QueueLength >= 0; phase==SPEAK implies QueueLength > 0.
type StreamSnapshot struct {
	Phase           StreamPhase `json:"status"`
	SessionID       string      `json:"sessionId,omitempty"`
	PresetID        string      `json:"presetId,omitempty"`
	QueueLength     int         `json:"queueLength"`
	CurrentMotionID string      `json:"currentMotionId,omitempty"`
}
