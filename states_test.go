package taskpulse

import (
	"testing"
)

func TestTaskState_StringAndParse(t *testing.T) {
	// String()
	if StatePending.String() != "pending" || StateRunning.String() != "running" || StateCompleted.String() != "completed" || StateFailed.String() != "failed" || StateCancelled.String() != "cancelled" {
		t.Fatal("unexpected state string values")
	}
	// Parse valid
	for _, s := range []string{"pending", "running", "completed", "failed", "cancelled"} {
		if _, err := ParseTaskState(s); err != nil {
			t.Fatalf("parse valid state %q failed: %v", s, err)
		}
	}
	// Parse invalid
	if _, err := ParseTaskState("weird"); err == nil {
		t.Fatal("expected error for invalid state")
	} else if err != ErrUnknownState {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestTaskState_Terminal(t *testing.T) {
	terminal := map[TaskState]bool{
		StatePending:   false,
		StateRunning:   false,
		StateCompleted: true,
		StateFailed:    true,
		StateCancelled: true,
	}
	for _, s := range AllTaskStates {
		if s.Terminal() != terminal[s] {
			t.Fatalf("state %s: Terminal() = %v", s, s.Terminal())
		}
	}
}

func TestTerminalStateFor(t *testing.T) {
	for kind, want := range map[UpdateKind]TaskState{
		KindCompleted: StateCompleted,
		KindFailed:    StateFailed,
		KindCancelled: StateCancelled,
	} {
		st, ok := terminalStateFor(kind)
		if !ok || st != want {
			t.Fatalf("kind %s: got %s/%v", kind, st, ok)
		}
	}
	for _, kind := range []UpdateKind{KindStarted, KindProgress} {
		if _, ok := terminalStateFor(kind); ok {
			t.Fatalf("kind %s should not be terminal", kind)
		}
	}
}
