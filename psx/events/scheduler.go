// Package events implements the global tick-driven event scheduler that
// coordinates per-component advancement, in the spirit of the teacher's
// EventScheduler (jeebie/events/events.go) but reshaped into the
// downcount-driven, single-threaded design spec.md section 4.1 requires:
// no channel, no goroutine, a plain sorted slice of events a deterministic
// System drains between CPU steps.
package events

import (
	"log/slog"
	"math"
	"sort"
)

// Handle identifies a registered event within the scheduler.
type Handle int

// Event is a single scheduled callback: one-shot when Interval == 0,
// periodic otherwise.
type Event struct {
	Handle      Handle
	Name        string
	Interval    uint64
	NextRunTime uint64
	LastRunTime uint64
	Active      bool
}

// Manager is the TimingEventManager: a global tick counter plus a sorted
// set of scheduled events, and the notion of "run until downcount expires".
type Manager struct {
	globalTick   uint64
	pendingTicks uint64
	downcount    int64
	frameTarget  uint64
	events       []*Event
	nextHandle   Handle
	log          *slog.Logger
}

// NoDowncount is returned as the downcount when no event is active, mirroring
// spec.md's "defaulting to INT32_MAX when no event is active".
const NoDowncount = int64(math.MaxInt32)

// New creates an empty scheduler with an unbounded downcount.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		downcount: NoDowncount,
		log:       log,
	}
}

// Register creates a new, inactive event with the given name and interval.
// Interval == 0 designates a one-shot event.
func (m *Manager) Register(name string, interval uint64) Handle {
	h := m.nextHandle
	m.nextHandle++
	m.events = append(m.events, &Event{
		Handle:   h,
		Name:     name,
		Interval: interval,
	})
	return h
}

func (m *Manager) find(h Handle) *Event {
	for _, e := range m.events {
		if e.Handle == h {
			return e
		}
	}
	return nil
}

// Schedule activates the event and sets its next firing ticksFromNow ticks
// in the future, then recomputes downcount.
func (m *Manager) Schedule(h Handle, ticksFromNow uint64) {
	e := m.find(h)
	if e == nil {
		return
	}
	e.Active = true
	e.NextRunTime = m.globalTick + ticksFromNow
	m.recomputeDowncount()
}

// Deactivate removes an event from consideration until rescheduled.
func (m *Manager) Deactivate(h Handle) {
	e := m.find(h)
	if e == nil {
		return
	}
	e.Active = false
	m.recomputeDowncount()
}

// AddCycles accumulates CPU-reported cycles into pending_ticks.
func (m *Manager) AddCycles(cycles uint64) {
	m.pendingTicks += cycles
}

// PendingTicks returns the uncommitted cycle count accumulated since the
// last RunEvents.
func (m *Manager) PendingTicks() uint64 { return m.pendingTicks }

// Downcount returns the remaining budget until the next event fires.
func (m *Manager) Downcount() int64 { return m.downcount }

// ShouldRunEvents reports whether pending_ticks has reached downcount.
func (m *Manager) ShouldRunEvents() bool {
	return int64(m.pendingTicks) >= m.downcount
}

// GlobalTick returns the committed tick counter.
func (m *Manager) GlobalTick() uint64 { return m.globalTick }

// RunEvents implements the spec.md section 4.1 contract:
// (a) commit pending_ticks into global_tick_counter
// (b) collect every active event whose next_run_time <= global_tick_counter
// (c) reschedule periodic events, carrying forward overshoot
// (d) deactivate one-shot events
// (e) fire the due events in stable NextRunTime order (the event list
//     itself is scanned, not kept sorted)
// (f) recompute downcount
// It returns the fired handles in firing-pass order (stable by NextRunTime).
func (m *Manager) RunEvents() []Handle {
	m.globalTick += m.pendingTicks
	m.pendingTicks = 0

	var fired []Handle
	var due []*Event
	for _, e := range m.events {
		if e.Active && e.NextRunTime <= m.globalTick {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextRunTime < due[j].NextRunTime
	})

	for _, e := range due {
		e.LastRunTime = e.NextRunTime
		fired = append(fired, e.Handle)
		if e.Interval > 0 {
			// Carry the overshoot forward by advancing from the event's own
			// schedule rather than from globalTick, so a late firing does
			// not skew the long-run average rate.
			e.NextRunTime += e.Interval
			for e.NextRunTime <= m.globalTick {
				e.NextRunTime += e.Interval
			}
		} else {
			e.Active = false
		}
	}

	m.recomputeDowncount()
	return fired
}

func (m *Manager) recomputeDowncount() {
	next := uint64(0)
	found := false
	for _, e := range m.events {
		if !e.Active {
			continue
		}
		if !found || e.NextRunTime < next {
			next = e.NextRunTime
			found = true
		}
	}
	if !found {
		m.downcount = NoDowncount
		return
	}
	if next <= m.globalTick {
		m.downcount = 0
		return
	}
	m.downcount = int64(next - m.globalTick)
}

// SetFrameTarget sets the cycle budget for the current frame.
func (m *Manager) SetFrameTarget(cycles uint64) {
	m.frameTarget = m.globalTick + cycles
}

// ShouldExitLoop reports whether the frame target has been reached.
func (m *Manager) ShouldExitLoop() bool {
	return m.globalTick >= m.frameTarget
}

// EventName returns the registered name for a handle, for logging.
func (m *Manager) EventName(h Handle) string {
	if e := m.find(h); e != nil {
		return e.Name
	}
	return "?"
}
