package anim

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrClipNotFound = errors.New("anim: clip not found")

// scheduleEpsilon absorbs float drift when a follow-up lands exactly on a tick boundary.
const scheduleEpsilon = 1e-9

type Clip struct {
	Name     string
	Duration float64
}

type Settings struct {
	Default   string
	SwapSpeed float64
}

// Action is the playback state of one clip on one character.
type Action struct {
	Name      string
	Duration  float64
	Enabled   bool
	Playing   bool
	TimeScale float64
	Time      float64

	weight float64
	fade   fade
}

type fade struct {
	active   bool
	from, to float64
	elapsed  float64
	duration float64
	value    float64
}

func (f *fade) start(from, to, duration float64) {
	*f = fade{active: duration > 0, from: from, to: to, duration: duration, value: from}
	if !f.active {
		f.value = to
	}
}

// advance returns true when the fade finished during this call.
func (f *fade) advance(dt float64) bool {
	if !f.active {
		return false
	}
	f.elapsed += dt
	if f.elapsed >= f.duration {
		f.value = f.to
		f.active = false
		return true
	}
	f.value = f.from + (f.to-f.from)*(f.elapsed/f.duration)
	return false
}

// Weight is the effective blend weight in [0,1].
func (a *Action) Weight() float64 {
	if !a.Enabled {
		return 0
	}
	return a.weight * a.fade.value
}

func (a *Action) Fading() bool { return a.fade.active }

// reset enables the action at full time scale with the given weight and rewinds it.
func (a *Action) reset(weight float64) {
	a.Enabled = true
	a.TimeScale = 1
	a.weight = weight
	a.Time = 0
}

type EventKind uint8

const (
	NextActionStarted EventKind = iota + 1
)

func (k EventKind) String() string {
	if k == NextActionStarted {
		return "next_action_started"
	}
	return "unknown"
}

type Event struct {
	Kind   EventKind
	Action string
	// Err is set when the follow-up could not be started; the event is still
	// delivered so waiters are released.
	Err error
}

type schedule struct {
	next      string
	remaining float64
}

// Mixer holds every action of one character and exactly one current action.
type Mixer struct {
	actions map[string]*Action
	names   []string
	current string
	swap    float64
	pending *schedule
	locked  bool
}

func NewMixer(clips []Clip, s Settings) (*Mixer, error) {
	m := &Mixer{actions: map[string]*Action{}, swap: math.Max(s.SwapSpeed, 0)}
	for _, c := range clips {
		if _, dup := m.actions[c.Name]; dup {
			continue
		}
		a := &Action{Name: c.Name, Duration: c.Duration}
		a.reset(0)
		a.fade.value = 1
		m.actions[c.Name] = a
		m.names = append(m.names, c.Name)
	}
	sort.Strings(m.names)

	def, ok := m.actions[s.Default]
	if !ok {
		return nil, fmt.Errorf("%w: default %q", ErrClipNotFound, s.Default)
	}
	def.reset(1)
	def.Playing = true
	m.current = s.Default
	return m, nil
}

func (m *Mixer) Current() string { return m.current }

func (m *Mixer) SwapSpeed() float64 { return m.swap }

func (m *Mixer) Has(name string) bool {
	_, ok := m.actions[name]
	return ok
}

// Action returns the named action or nil.
func (m *Mixer) Action(name string) *Action { return m.actions[name] }

// Pending reports the queued follow-up and the seconds left until it starts.
func (m *Mixer) Pending() (string, float64, bool) {
	if m.pending == nil {
		return "", 0, false
	}
	return m.pending.next, m.pending.remaining, true
}

// Transition crossfades from the current action into target over the swap
// speed. A non-empty queued action is started automatically once target has
// played for its duration minus the swap speed. Transitioning to the current
// action does nothing.
func (m *Mixer) Transition(target, queued string) error {
	in, ok := m.actions[target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrClipNotFound, target)
	}
	if queued != "" && !m.Has(queued) {
		return fmt.Errorf("%w: queued %q", ErrClipNotFound, queued)
	}
	if target == m.current {
		return nil
	}

	if out := m.actions[m.current]; out != nil {
		from := out.fade.value
		if !out.Enabled {
			from = 0
		}
		out.fade.start(from, 0, m.swap)
		if !out.fade.active {
			out.Enabled = false
		}
	}
	in.reset(1)
	in.Playing = true
	in.fade.start(0, 1, m.swap)

	m.current = target
	m.pending = nil
	if queued != "" {
		m.pending = &schedule{next: queued, remaining: math.Max(in.Duration-m.swap, 0)}
	}
	return nil
}

// Update advances playback by dt seconds and fires the queued follow-up when due.
func (m *Mixer) Update(dt float64) []Event {
	if dt < 0 {
		dt = 0
	}
	for _, name := range m.names {
		a := m.actions[name]
		if !a.Enabled {
			continue
		}
		if a.Playing {
			a.Time += dt * a.TimeScale
			if a.Duration > 0 && a.Time >= a.Duration {
				a.Time = math.Mod(a.Time, a.Duration)
			}
		}
		if a.fade.advance(dt) && a.fade.to == 0 {
			a.Enabled = false
			a.Playing = false
			a.weight = 0
		}
	}

	if m.pending == nil {
		return nil
	}
	m.pending.remaining -= dt
	if m.pending.remaining > scheduleEpsilon {
		return nil
	}
	next := m.pending.next
	m.pending = nil
	ev := Event{Kind: NextActionStarted, Action: next}
	if err := m.Transition(next, ""); err != nil {
		ev.Err = fmt.Errorf("anim: follow-up %q: %w", next, err)
	}
	return []Event{ev}
}

// Cancel drops a pending follow-up.
func (m *Mixer) Cancel() { m.pending = nil }

func (m *Mixer) Lock()        { m.locked = true }
func (m *Mixer) Unlock()      { m.locked = false }
func (m *Mixer) Locked() bool { return m.locked }

type ActionState struct {
	Name    string  `json:"name"`
	Weight  float64 `json:"weight"`
	Time    float64 `json:"time"`
	Enabled bool    `json:"enabled"`
}

// Snapshot lists playing actions by name.
func (m *Mixer) Snapshot() []ActionState {
	out := make([]ActionState, 0, 2)
	for _, name := range m.names {
		a := m.actions[name]
		if !a.Enabled || !a.Playing {
			continue
		}
		out = append(out, ActionState{Name: name, Weight: a.Weight(), Time: a.Time, Enabled: true})
	}
	return out
}
