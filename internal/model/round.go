package model

import "time"

// Outcomes recorded for a classification round.
const (
	RoundOK     = "ok"
	RoundFailed = "failed"
)

// Round is one classification request and what it produced.
type Round struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	FrameBytes int               `json:"frame_bytes"`
	Provider   string            `json:"provider"`
	Outcome    string            `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	Candidates int               `json:"candidates"`
	Admitted   int               `json:"admitted"`
	Added      string            `json:"added,omitempty"`
	Detections []DetectionRecord `json:"detections,omitempty"`
}

// DetectionRecord is a candidate reported during a round.
type DetectionRecord struct {
	ID        string `json:"id"`
	RoundID   string `json:"round_id"`
	Seq       int    `json:"seq"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Fragility string `json:"fragility"`
	Admitted  bool   `json:"admitted"`
}
