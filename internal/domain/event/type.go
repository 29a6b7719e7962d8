package event

// Type identifies the type of domain event
type Type string

const (
	TypeClaimSubmitted    Type = "claim.submitted"
	TypeClaimVoted        Type = "claim.voted"
	TypeClaimReconfigured Type = "claim.reconfigured"
	TypeStatusChanged     Type = "claim.status_changed"
	TypeAdvisoryRecorded  Type = "claim.advisory_recorded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimSubmitted,
		TypeClaimVoted,
		TypeClaimReconfigured,
		TypeStatusChanged,
		TypeAdvisoryRecorded:
		return true
	default:
		return false
	}
}
