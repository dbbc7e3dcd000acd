package arbiter

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/autopeer-bms/internal/pkg/util/fsm"
)

// Mode is the arbitration state.
type Mode string

const (
	// ModeDetecting: auto-detect on, no protocol active yet.
	ModeDetecting Mode = "detecting"
	// ModeDetected: auto-detect on, a protocol crossed the threshold.
	ModeDetected Mode = "detected"
	// ModePinned: auto-detect off, one protocol receives every frame it accepts.
	ModePinned Mode = "pinned"
	// ModeStandby: auto-detect off and nothing active. Frames are still arbitrated.
	ModeStandby Mode = "standby"
)

const (
	EventPromote = "promote"
	EventSelect  = "select"
	EventAuto    = "auto"
	EventFreeze  = "freeze"
	EventRelease = "release"
)

type modeMachine struct {
	*fsm.FSM
	logger logr.Logger
}

func newModeMachine(logger logr.Logger) *modeMachine {
	m := &modeMachine{logger: logger}

	var (
		detecting = string(ModeDetecting)
		detected  = string(ModeDetected)
		pinned    = string(ModePinned)
		standby   = string(ModeStandby)
		all       = []string{detecting, detected, pinned, standby}
	)

	events := fsm.Events{
		{Name: EventPromote, Src: []string{detecting}, Dst: detected},
		{Name: EventPromote, Src: []string{standby}, Dst: pinned},
		{Name: EventSelect, Src: all, Dst: pinned},
		{Name: EventAuto, Src: all, Dst: detecting},
		{Name: EventFreeze, Src: []string{detected, pinned}, Dst: pinned},
		{Name: EventFreeze, Src: []string{detecting, standby}, Dst: standby},
		{Name: EventRelease, Src: []string{detecting, detected}, Dst: detecting},
		{Name: EventRelease, Src: []string{pinned, standby}, Dst: standby},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(m.actionEnterState),
	}

	m.FSM = fsm.NewFSM(detecting, events, callbacks)
	return m
}

func (m *modeMachine) actionEnterState(_ context.Context, e *fsm.Event) error {
	m.logger.V(1).Info("Arbitration mode changed", "event", e.Event, "from", e.Src, "to", e.Dst)
	return nil
}

// fire applies an event. Self transitions are expected and ignored.
func (m *modeMachine) fire(event string) {
	if err := m.Event(context.Background(), event); fsmutil.IsRealError(err) {
		m.logger.Error(err, "Arbitration mode transition failed", "event", event)
	}
}

func (m *modeMachine) mode() Mode {
	return Mode(m.Current())
}
