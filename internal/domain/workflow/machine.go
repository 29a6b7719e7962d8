package workflow

// StateMachine tracks the current state of one claim and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one configured transition
	CanFire(trigger Trigger) bool

	// Fire executes the first transition whose guard passes
	Fire(trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}

// NewClaimMachine returns the claim lifecycle machine positioned at the given state.
// PENDING accepts votes and reconfiguration; APPROVED and REJECTED have no exits.
func NewClaimMachine(current State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		PermitReentry(TriggerVote).
		PermitReentry(TriggerReconfigure)

	return builder.Build(current)
}
