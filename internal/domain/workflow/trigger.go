package workflow

// Trigger is an event that may move a claim between states
type Trigger string

const (
	// TriggerApprove resolves the claim as approved
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject resolves the claim as rejected
	TriggerReject Trigger = "REJECT"
	// TriggerVote records a vote that leaves the claim pending
	TriggerVote Trigger = "VOTE"
	// TriggerReconfigure replaces the chain and rule of a pending claim
	TriggerReconfigure Trigger = "RECONFIGURE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
