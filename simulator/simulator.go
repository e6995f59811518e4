package simulator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
)

// NoContext is the execution context of the code running outside of any
// scheduled event, e.g. topology construction before Run().
const NoContext = math.MaxUint32

type (
	// Scheduler is the subset of the simulator that the link layer and
	// the applications depend on.
	Scheduler interface {
		// Now returns the current virtual time.
		Now() time.Duration
		// Context returns the execution context of the running event.
		Context() uint32
		// Schedule runs fn delay after Now() in the current context.
		Schedule(delay time.Duration, fn func()) *EventHandle
		// ScheduleWithContext runs fn delay after Now() in the given context.
		ScheduleWithContext(context uint32, delay time.Duration, fn func()) *EventHandle
		// Cancel prevents a pending event from running. Cancelling a nil,
		// fired or already cancelled event is a no-op.
		Cancel(h *EventHandle)
	}

	// Simulator is a single-threaded discrete-event simulator built on top
	// of akita's serial engine. Virtual time is kept in integer nanoseconds
	// and converted to the engine's seconds only for ordering, so repeated
	// sums of delays never drift. The engine holds one event per distinct
	// timestamp; events sharing a timestamp run in the order they were
	// scheduled.
	Simulator struct {
		engine  *sim.SerialEngine
		slots   map[time.Duration]*slot
		now     time.Duration
		context uint32
		stopAt  time.Duration
		stopped bool
		running bool
		l       logrus.FieldLogger
	}

	// EventHandle identifies a scheduled event.
	EventHandle struct {
		at        time.Duration
		context   uint32
		fn        func()
		fired     bool
		cancelled bool
	}

	slot struct {
		handles []*EventHandle
	}

	event struct {
		*sim.EventBase
		at time.Duration
	}
)

// New creates a Simulator at virtual time zero.
func New() *Simulator {
	return &Simulator{
		engine:  sim.NewSerialEngine(),
		slots:   make(map[time.Duration]*slot),
		context: NoContext,
		stopAt:  -1,
		l:       logrus.WithField("component", "simulator"),
	}
}

func (s *Simulator) Now() time.Duration {
	return s.now
}

func (s *Simulator) Context() uint32 {
	return s.context
}

func (s *Simulator) Schedule(delay time.Duration, fn func()) *EventHandle {
	return s.ScheduleWithContext(s.context, delay, fn)
}

func (s *Simulator) ScheduleWithContext(context uint32, delay time.Duration, fn func()) *EventHandle {
	if delay < 0 {
		panic(fmt.Sprintf("cannot schedule an event in the past (delay %v)", delay))
	}
	h := &EventHandle{
		at:      s.now + delay,
		context: context,
		fn:      fn,
	}
	sl, ok := s.slots[h.at]
	if !ok {
		sl = &slot{}
		s.slots[h.at] = sl
		s.engine.Schedule(&event{
			EventBase: sim.NewEventBase(toVTime(h.at), s),
			at:        h.at,
		})
	}
	sl.handles = append(sl.handles, h)
	return h
}

func (s *Simulator) Cancel(h *EventHandle) {
	if h == nil || h.fired {
		return
	}
	h.cancelled = true
}

// Stop makes the simulation end at the given virtual time: events
// scheduled after it are discarded. A negative time clears the stop.
func (s *Simulator) Stop(at time.Duration) {
	s.stopAt = at
}

// Stopped tells whether the stop time was reached.
func (s *Simulator) Stopped() bool {
	return s.stopped
}

// Run processes events until none are left or the stop time is reached.
func (s *Simulator) Run() error {
	if s.running {
		return errors.New("simulator is already running")
	}
	s.running = true
	defer func() {
		s.running = false
		s.context = NoContext
	}()
	s.l.WithField("stop_at", s.stopAt).Debug("simulation started")
	if err := s.engine.Run(); err != nil {
		return fmt.Errorf("error running serial engine: %w", err)
	}
	s.l.WithField("now", s.now).Debug("simulation finished")
	return nil
}

// Handle implements sim.Handler. Only events created by this Simulator are
// ever delivered here.
func (s *Simulator) Handle(e sim.Event) error {
	evt, ok := e.(*event)
	if !ok {
		return fmt.Errorf("unexpected event type %T", e)
	}
	sl := s.slots[evt.at]
	defer delete(s.slots, evt.at)
	if s.stopped {
		return nil
	}
	if 0 <= s.stopAt && s.stopAt < evt.at {
		s.stopped = true
		s.now = s.stopAt
		return nil
	}
	s.now = evt.at

	// handlers may append to the slot while it is drained
	for i := 0; i < len(sl.handles); i++ {
		h := sl.handles[i]
		if h.cancelled {
			continue
		}
		h.fired = true
		s.context = h.context
		h.fn()
	}
	return nil
}

// Pending tells whether the event is still going to run.
func (h *EventHandle) Pending() bool {
	return h != nil && !h.fired && !h.cancelled
}

// At returns the virtual time the event was scheduled for.
func (h *EventHandle) At() time.Duration {
	return h.at
}

func toVTime(d time.Duration) sim.VTimeInSec {
	return sim.VTimeInSec(d.Seconds())
}
