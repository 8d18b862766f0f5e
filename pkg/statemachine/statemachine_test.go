package statemachine

import "testing"

type counter struct {
	ticks int
}

func stateTick(c *counter) StateFn[counter] {
	c.ticks++
	return stateHold
}

func stateHold(c *counter) StateFn[counter] {
	return stateHold
}

func stateFinal(c *counter) StateFn[counter] {
	c.ticks++
	return nil
}

func TestDispatch(t *testing.T) {
	c := &counter{}
	sm := New(c, stateHold)

	if !sm.Is(stateHold) {
		t.Fatalf("machine should start in the initial state")
	}

	sm.Dispatch(stateTick)
	if c.ticks != 1 {
		t.Errorf("ticks = %d, want 1", c.ticks)
	}
	// Dispatch stores the returned state without executing it.
	if !sm.Is(stateHold) {
		t.Errorf("machine should hold the returned state")
	}
	if sm.Terminated() {
		t.Errorf("machine should not be terminated")
	}
}

func TestTermination(t *testing.T) {
	c := &counter{}
	sm := New(c, stateHold)

	sm.Dispatch(stateFinal)
	if !sm.Terminated() {
		t.Errorf("machine should terminate on a nil next state")
	}
	if sm.Current() != nil {
		t.Errorf("current state should be nil after termination")
	}
	if !sm.Is(nil) {
		t.Errorf("Is(nil) should report termination")
	}

	// Dispatching nil is a no-op beyond storing the state.
	sm.Dispatch(nil)
	if c.ticks != 1 {
		t.Errorf("ticks = %d, want 1", c.ticks)
	}
}

func TestSetState(t *testing.T) {
	c := &counter{}
	sm := New(c, stateHold)

	sm.SetState(stateTick)
	if c.ticks != 0 {
		t.Errorf("SetState must not execute the state")
	}
	if !sm.Is(stateTick) {
		t.Errorf("SetState should replace the current state")
	}
}
