package entity

import "time"

// ClaimHistory is one row of a claim's audit trail
type ClaimHistory struct {
	ID             int64     `json:"id"`
	ClaimID        int64     `json:"claim_id"`
	ActorID        int64     `json:"actor_id"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
