package svc_sim

import (
	"fmt"
	"math"
	"sync"
)

// Checkpoint kinds accepted in CheckpointConfig.Kind.
const (
	KindContain    = "contain"
	KindGoToPickUp = "go_to_pick_up"
)

// Checkpoint is one timed, weighted stage of the competition.
type Checkpoint interface {
	Number() int
	Name() string
	// Start records the activation time. It is called once per run.
	Start()
	// Check reports whether the stage is complete. Once it returns true it
	// keeps returning true without repeating side effects.
	Check() bool
	// Score is the weighted elapsed time, zero before Start.
	Score() float64
	Done() bool
	// Reset returns the stage to its pre-Start state for a new run.
	Reset()
}

// CheckpointDeps are the collaborators a checkpoint may need.
type CheckpointDeps struct {
	Clock Clock
	Zones ZoneClient
	Log   Logger
}

type checkpointFactory func(cfg CheckpointConfig, number int, deps CheckpointDeps) Checkpoint

var checkpointKinds = map[string]checkpointFactory{
	KindContain: func(cfg CheckpointConfig, number int, deps CheckpointDeps) Checkpoint {
		return NewContainCheckpoint(cfg, number, deps)
	},
	KindGoToPickUp: func(cfg CheckpointConfig, number int, deps CheckpointDeps) Checkpoint {
		if cfg.Namespace == "" {
			cfg.Namespace = KindGoToPickUp
		}
		if cfg.Name == "" {
			cfg.Name = "Go to pick-up location"
		}
		return NewContainCheckpoint(cfg, number, deps)
	},
}

// NewCheckpoint builds the checkpoint for cfg.Kind. number is 1-based.
func NewCheckpoint(cfg CheckpointConfig, number int, deps CheckpointDeps) (Checkpoint, error) {
	factory, ok := checkpointKinds[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("checkpoint %d: %w %q", number, ErrUnknownCheckpointKind, cfg.Kind)
	}
	return factory(cfg, number, deps), nil
}

// timedCheckpoint holds the timing and scoring shared by every kind.
type timedCheckpoint struct {
	number int
	name   string
	weight float64
	clock  Clock
	log    Logger

	startTime float64
	endTime   float64
	started   bool
	ended     bool
}

func newTimedCheckpoint(cfg CheckpointConfig, number int, deps CheckpointDeps) timedCheckpoint {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("Checkpoint %d", number)
	}
	return timedCheckpoint{
		number: number,
		name:   name,
		weight: cfg.Weight,
		clock:  deps.Clock,
		log:    orNop(deps.Log),
	}
}

func (c *timedCheckpoint) Number() int  { return c.number }
func (c *timedCheckpoint) Name() string { return c.name }
func (c *timedCheckpoint) Done() bool   { return c.ended }

func (c *timedCheckpoint) Start() {
	if c.started {
		c.log.Warnf("Checkpoint %d already started", c.number)
		return
	}
	c.startTime = c.clock.SimTime()
	c.started = true
	c.log.Infof("Started Checkpoint %d at %s", c.number, formatSimTime(c.startTime))
}

func (c *timedCheckpoint) Score() float64 {
	if !c.started {
		return 0
	}
	end := c.endTime
	if !c.ended {
		end = c.clock.SimTime()
	}
	return (end - c.startTime) * c.weight
}

// finish freezes the end time.
func (c *timedCheckpoint) finish() {
	if c.ended {
		return
	}
	c.endTime = c.clock.SimTime()
	c.ended = true
	c.log.Infof("Completed Checkpoint %d at %s", c.number, formatSimTime(c.endTime))
}

func (c *timedCheckpoint) resetTiming() {
	c.startTime, c.endTime = 0, 0
	c.started, c.ended = false, false
}

// ContainCheckpoint completes when a zone's contains detector reports true.
type ContainCheckpoint struct {
	timedCheckpoint

	ns    string
	zones ZoneClient
	state ContainState
	sub   Subscription

	// Latched by transport callbacks, read by Check.
	mu       sync.Mutex
	gen      int
	enabled  bool
	contains bool
}

// NewContainCheckpoint builds a checkpoint bound to cfg.Namespace.
func NewContainCheckpoint(cfg CheckpointConfig, number int, deps CheckpointDeps) *ContainCheckpoint {
	c := &ContainCheckpoint{
		timedCheckpoint: newTimedCheckpoint(cfg, number, deps),
		ns:              cfg.Namespace,
		zones:           deps.Zones,
		state:           ContainIdle,
	}
	if c.ns == "" {
		c.log.Warnf("Missing <namespace> for contain checkpoint %d", number)
	}
	return c
}

// Namespace returns the zone namespace the checkpoint listens on.
func (c *ContainCheckpoint) Namespace() string { return c.ns }

// State returns the current lifecycle state.
func (c *ContainCheckpoint) State() ContainState { return c.state }

func (c *ContainCheckpoint) Check() bool {
	if c.state == ContainIdle && !c.begin() {
		return false
	}

	enabled, contains := c.latched()

	if c.state == ContainEnabling && enabled {
		c.state = ContainEnabled
	}
	if c.state == ContainEnabled && contains {
		c.finish()
		c.state = ContainDone
		c.cleanup()
		// The disable ack may already have arrived.
		enabled, _ = c.latched()
	}
	if c.state == ContainDone && !enabled && c.sub == nil {
		c.state = ContainInert
	}
	return c.state == ContainDone || c.state == ContainInert
}

// begin subscribes to the contains signal and requests the detector be enabled.
func (c *ContainCheckpoint) begin() bool {
	if c.ns == "" || c.zones == nil {
		return false
	}
	gen := c.generation()
	sub, err := c.zones.Subscribe(c.ns, func(v bool) { c.onContain(gen, v) })
	if err != nil {
		c.log.Errorf("Checkpoint %d: subscribe to [%s]: %v", c.number, c.ns, err)
		return false
	}
	c.sub = sub
	c.zones.RequestEnable(c.ns, true, c.onEnableReply(gen, true))
	c.state = ContainEnabling
	return true
}

// cleanup unsubscribes and asks the detector to stop. Best effort.
func (c *ContainCheckpoint) cleanup() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.zones != nil {
		c.zones.RequestEnable(c.ns, false, c.onEnableReply(c.generation(), false))
	}
}

func (c *ContainCheckpoint) Reset() {
	if c.state == ContainEnabling || c.state == ContainEnabled {
		c.cleanup()
	}
	c.mu.Lock()
	c.gen++
	c.enabled, c.contains = false, false
	c.mu.Unlock()
	c.sub = nil
	c.state = ContainIdle
	c.resetTiming()
}

func (c *ContainCheckpoint) generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *ContainCheckpoint) latched() (enabled, contains bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, c.contains
}

func (c *ContainCheckpoint) onContain(gen int, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !v {
		return
	}
	c.contains = true
}

func (c *ContainCheckpoint) onEnableReply(gen int, want bool) func(ok bool) {
	return func(ok bool) {
		if !ok {
			c.log.Warnf("Checkpoint %d: enable(%t) request to [%s] failed", c.number, want, c.ns)
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen {
			return
		}
		c.enabled = want
	}
}

// formatSimTime renders seconds as HH:MM:SS.mmm.
func formatSimTime(t float64) string {
	ms := int64(math.Round(t * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
