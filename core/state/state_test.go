package state

import "testing"

func TestRunState_String(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{StateInit, "Init"},
		{StateNavigated, "Navigated"},
		{StateGroupJoined, "GroupJoined"},
		{StateAppOpened, "AppOpened"},
		{StateQuestsChecked, "QuestsChecked"},
		{StateFarmed, "Farmed"},
		{StateBalanceRead, "BalanceRead"},
		{StateDone, "Done"},
		{StateErrored, "Errored"},
		{RunState(99), "Unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("RunState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRunState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from RunState
		to   RunState
		want bool
	}{
		{"init to navigated", StateInit, StateNavigated, true},
		{"navigated to group joined", StateNavigated, StateGroupJoined, true},
		{"group joined to app opened", StateGroupJoined, StateAppOpened, true},
		{"app opened to quests checked", StateAppOpened, StateQuestsChecked, true},
		{"quests checked to farmed", StateQuestsChecked, StateFarmed, true},
		{"farmed to balance read", StateFarmed, StateBalanceRead, true},
		{"balance read to done", StateBalanceRead, StateDone, true},
		{"no skipping ahead", StateInit, StateAppOpened, false},
		{"no going back", StateFarmed, StateNavigated, false},
		{"errored from init", StateInit, StateErrored, true},
		{"errored from mid-run", StateQuestsChecked, StateErrored, true},
		{"errored from balance read", StateBalanceRead, StateErrored, true},
		{"done is terminal", StateDone, StateErrored, false},
		{"errored is terminal", StateErrored, StateNavigated, false},
		{"errored stays errored", StateErrored, StateErrored, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s.CanTransitionTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRunState_IsTerminal(t *testing.T) {
	if !StateDone.IsTerminal() {
		t.Error("StateDone should be terminal")
	}
	if !StateErrored.IsTerminal() {
		t.Error("StateErrored should be terminal")
	}
	if StateInit.IsTerminal() {
		t.Error("StateInit should not be terminal")
	}
	if StateBalanceRead.IsTerminal() {
		t.Error("StateBalanceRead should not be terminal")
	}
}

func TestRunState_Reached(t *testing.T) {
	if !StateDone.Reached(StateBalanceRead) {
		t.Error("Done should have reached BalanceRead")
	}
	if !StateFarmed.Reached(StateFarmed) {
		t.Error("a state should have reached itself")
	}
	if StateGroupJoined.Reached(StateFarmed) {
		t.Error("GroupJoined should not have reached Farmed")
	}
	if StateErrored.Reached(StateInit) {
		t.Error("Errored should not have reached any milestone")
	}
}

func TestTransitionError(t *testing.T) {
	err := NewTransitionError(StateInit, StateDone, "")
	want := "invalid state transition from Init to Done"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = NewTransitionError(StateInit, StateDone, "shortcut")
	want = "invalid state transition from Init to Done: shortcut"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
