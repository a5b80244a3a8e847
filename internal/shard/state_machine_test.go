package shard

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StateIdle, StateMonitoring, true},
		{StateMonitoring, StateEmitting, true},
		{StateMonitoring, StateDebounced, true},
		{StateEmitting, StateMonitoring, true},
		{StateDebounced, StateMonitoring, true},
		{StateMonitoring, StateStopped, true},
		{StateStopped, StateMonitoring, false},
		{StateIdle, StateEmitting, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StateStopped) {
		t.Error("expected stopped to be terminal")
	}
	if IsTerminal(StateMonitoring) {
		t.Error("expected monitoring to not be terminal")
	}
}
