// Package lifecycle bridges host application foreground/background signals
// to the connection machine, so a backgrounded host neither burns battery on
// reconnect attempts nor keeps a dead socket around.
package lifecycle

import (
	"time"

	"github.com/yanun0323/logs"

	"main/pkg/schedule"
)

// AppState is a host application activity state.
type AppState uint8

const (
	StateActive AppState = iota
	StateBackground
)

// String returns the string representation of an AppState.
func (s AppState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Source emits host application state transitions.
type Source interface {
	Subscribe(fn func(AppState)) (cancel func())
}

// Machine is the subset of the connection machine the coordinator drives.
type Machine interface {
	Connect()
	Suppress(v bool)
	CloseIntentional(reason string)
}

const defaultResumeDelay = 300 * time.Millisecond

// Coordinator forces connection teardown on background and a single fresh
// connect on return to foreground.
type Coordinator struct {
	machine     Machine
	sched       schedule.Scheduler
	resumeDelay time.Duration
	suppressed  bool
}

// NewCoordinator builds a coordinator. resumeDelay <= 0 selects the default
// brief pause that lets the host finish resuming before the dial.
func NewCoordinator(machine Machine, sched schedule.Scheduler, resumeDelay time.Duration) *Coordinator {
	if sched == nil {
		sched = schedule.New()
	}
	if resumeDelay <= 0 {
		resumeDelay = defaultResumeDelay
	}
	return &Coordinator{machine: machine, sched: sched, resumeDelay: resumeDelay}
}

// Handle applies one host state transition. Background raises the
// suppress-flag and tears the channel down intentionally; foreground clears
// the flag and schedules exactly one connect. Repeated foreground signals
// are no-ops thanks to the machine's already-connected guard.
func (c *Coordinator) Handle(state AppState) {
	switch state {
	case StateBackground:
		logs.Infof("lifecycle: entering background, suspending channel")
		c.suppressed = true
		c.machine.Suppress(true)
		c.machine.CloseIntentional("app backgrounded")
	case StateActive:
		if !c.suppressed {
			return
		}
		c.suppressed = false
		logs.Infof("lifecycle: returning to foreground, resuming channel")
		c.machine.Suppress(false)
		c.sched.After(c.resumeDelay, c.machine.Connect)
	}
}

// Bind subscribes the coordinator to a host state source.
func (c *Coordinator) Bind(src Source) (cancel func()) {
	return src.Subscribe(c.Handle)
}
