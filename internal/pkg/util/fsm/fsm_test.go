package fsm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/looplab/fsm"
)

func TestIsRealError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no transition", fsm.NoTransitionError{}, false},
		{"wrapped no transition", fmt.Errorf("select: %w", fsm.NoTransitionError{}), false},
		{"canceled", fsm.CanceledError{}, false},
		{"invalid event", fsm.InvalidEventError{Event: "promote", State: "pinned"}, true},
		{"plain", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRealError(tt.err); got != tt.want {
				t.Errorf("IsRealError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapEventSetsErr(t *testing.T) {
	boom := errors.New("boom")
	f := fsm.NewFSM("a",
		fsm.Events{{Name: "go", Src: []string{"a"}, Dst: "b"}},
		fsm.Callbacks{
			"enter_b": WrapEvent(func(_ context.Context, _ *fsm.Event) error { return boom }),
		},
	)

	err := f.Event(context.Background(), "go")
	if !errors.Is(err, boom) {
		t.Fatalf("Event() = %v, want %v", err, boom)
	}
	if f.Current() != "b" {
		t.Errorf("state = %q, want b", f.Current())
	}
}
