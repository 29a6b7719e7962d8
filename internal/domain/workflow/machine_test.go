package workflow

import (
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"approved", StateApproved, true},
		{"unknown", State("COMPLETED"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigureReturnsSameConfig(t *testing.T) {
	builder := NewBuilder()
	if builder.Configure(StatePending) != builder.Configure(StatePending) {
		t.Error("Configure() should return the same config for the same state")
	}
}

func TestBuilder_PanicsOnInvalidState(t *testing.T) {
	cases := map[string]func(){
		"configure": func() { NewBuilder().Configure(State("BOGUS")) },
		"build":     func() { NewBuilder().Build(State("BOGUS")) },
		"permit":    func() { NewBuilder().Configure(StatePending).Permit(TriggerApprove, State("BOGUS")) },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("%s should panic on invalid state", name)
				}
			}()
			fn()
		})
	}
}

func TestStateConfiguration_PermitIf(t *testing.T) {
	allow := false
	builder := NewBuilder()
	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func() bool { return allow })

	machine := builder.Build(StatePending)
	err := machine.Fire(TriggerApprove)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StatePending {
		t.Errorf("state changed after failed guard: %v", machine.State())
	}

	allow = true
	if err := machine.Fire(TriggerApprove); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateApproved {
		t.Errorf("State() = %v, want %v", machine.State(), StateApproved)
	}
}

func TestStateConfiguration_PermitReentry(t *testing.T) {
	machine := NewClaimMachine(StatePending)

	for _, trigger := range []Trigger{TriggerVote, TriggerReconfigure} {
		if err := machine.Fire(trigger); err != nil {
			t.Fatalf("Fire(%s) failed: %v", trigger, err)
		}
		if machine.State() != StatePending {
			t.Errorf("after %s state = %v, want %v", trigger, machine.State(), StatePending)
		}
	}
}

func TestClaimMachine_PendingTransitions(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    State
	}{
		{TriggerApprove, StateApproved},
		{TriggerReject, StateRejected},
		{TriggerVote, StatePending},
		{TriggerReconfigure, StatePending},
	}

	for _, tt := range tests {
		t.Run(string(tt.trigger), func(t *testing.T) {
			machine := NewClaimMachine(StatePending)
			if !machine.CanFire(tt.trigger) {
				t.Fatalf("CanFire(%s) = false from PENDING", tt.trigger)
			}
			if err := machine.Fire(tt.trigger); err != nil {
				t.Fatalf("Fire(%s) failed: %v", tt.trigger, err)
			}
			if machine.State() != tt.want {
				t.Errorf("State() = %v, want %v", machine.State(), tt.want)
			}
		})
	}
}

func TestClaimMachine_TerminalStatesAreAbsorbing(t *testing.T) {
	triggers := []Trigger{TriggerApprove, TriggerReject, TriggerVote, TriggerReconfigure}

	for _, state := range []State{StateApproved, StateRejected} {
		machine := NewClaimMachine(state)

		if got := machine.PermittedTriggers(); len(got) != 0 {
			t.Errorf("%s: PermittedTriggers() = %v, want none", state, got)
		}

		for _, trigger := range triggers {
			if machine.CanFire(trigger) {
				t.Errorf("%s: CanFire(%s) = true", state, trigger)
			}
			err := machine.Fire(trigger)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s: Fire(%s) error = %v, want %v", state, trigger, err, ErrInvalidTransition)
			}
			if machine.State() != state {
				t.Errorf("%s: state moved to %v", state, machine.State())
			}
		}
	}
}

func TestStateMachine_Independence(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).Permit(TriggerApprove, StateApproved)

	first := builder.Build(StatePending)
	second := builder.Build(StatePending)

	if err := first.Fire(TriggerApprove); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if second.State() != StatePending {
		t.Errorf("second machine state = %v, want %v", second.State(), StatePending)
	}

	// later configuration must not leak into built machines
	builder.Configure(StatePending).Permit(TriggerReject, StateRejected)
	if second.CanFire(TriggerReject) {
		t.Error("built machine picked up configuration added after Build()")
	}
}
