package svc_sim

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CompetitionController sequences checkpoints and aggregates their score.
//
// current is 0 when no task is running, otherwise the 1-based index of the
// active checkpoint.
type CompetitionController struct {
	mu sync.Mutex

	clock          Clock
	log            Logger
	pickUpLocation string
	checkpoints    []Checkpoint
	enabled        bool

	current int
	runID   string

	publishPeriod float64
	lastPublish   float64
	primed        bool
}

// NewCompetitionController builds the checkpoints described by cfg.
//
// A missing pick-up location or an invalid setting such as a negative weight
// leaves the controller loaded but disabled. An unknown checkpoint kind is
// returned as an error.
func NewCompetitionController(cfg CompetitionConfig, deps CheckpointDeps) (*CompetitionController, error) {
	deps.Log = orNop(deps.Log)
	cc := &CompetitionController{
		clock:          deps.Clock,
		log:            deps.Log,
		pickUpLocation: cfg.PickUpLocation,
		enabled:        true,
	}

	if cfg.ScoreFrequency <= 0 {
		cfg.ScoreFrequency = defaultScoreFrequency
	}
	cc.publishPeriod = 1 / cfg.ScoreFrequency

	if cfg.PickUpLocation == "" {
		cc.log.Errorf("Missing <pick_up_location>, competition not initialized")
		cc.enabled = false
	}

	for i, cpCfg := range cfg.Checkpoints {
		cp, err := NewCheckpoint(cpCfg, i+1, deps)
		if err != nil {
			return nil, err
		}
		cc.checkpoints = append(cc.checkpoints, cp)
	}

	if err := cfg.Validate(); err != nil {
		cc.log.Errorf("Invalid competition config, competition not initialized: %v", err)
		cc.enabled = false
	}

	if cc.enabled {
		cc.log.Infof("Competition loaded with %d checkpoints", len(cc.checkpoints))
	}
	return cc, nil
}

// StartTask begins a new run at checkpoint 1.
func (cc *CompetitionController) StartTask() (TaskResponse, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if !cc.enabled {
		return TaskResponse{}, ErrCompetitionDisabled
	}
	if cc.current != 0 {
		cc.log.Errorf("Competition is already running.")
		return TaskResponse{}, ErrCompetitionRunning
	}
	if len(cc.checkpoints) == 0 {
		return TaskResponse{}, ErrNoCheckpoints
	}

	for _, cp := range cc.checkpoints {
		cp.Reset()
	}
	cc.runID = newRunID()
	cc.current = 1
	cc.checkpoints[0].Start()

	return TaskResponse{RunID: cc.runID, PickUpLocation: cc.pickUpLocation}, nil
}

// Advance checks the active checkpoint and moves to the next one when it
// completes. At most one stage advances per call.
func (cc *CompetitionController) Advance() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.current == 0 {
		return
	}
	if !cc.checkpoints[cc.current-1].Check() {
		return
	}

	cc.current++
	if cc.current > len(cc.checkpoints) {
		cc.log.Infof("Competition complete! Total score %.3f", cc.totalLocked())
		cc.current = 0
		return
	}
	cc.checkpoints[cc.current-1].Start()
}

// publishTolerance absorbs the rounding error of sim time summed from fixed steps.
const publishTolerance = 1e-9

// SnapshotScore returns the score when a publication is due. The first call
// only primes the publish timer.
func (cc *CompetitionController) SnapshotScore() (ScoreSnapshot, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := cc.clock.SimTime()
	if !cc.primed {
		cc.primed = true
		cc.lastPublish = now
		return ScoreSnapshot{}, false
	}
	if now-cc.lastPublish+publishTolerance < cc.publishPeriod {
		return ScoreSnapshot{}, false
	}
	cc.lastPublish = now
	return cc.scoreLocked(now), true
}

// Score returns the current score without rate limiting.
func (cc *CompetitionController) Score() ScoreSnapshot {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.scoreLocked(cc.clock.SimTime())
}

func (cc *CompetitionController) scoreLocked(now float64) ScoreSnapshot {
	snap := ScoreSnapshot{RunID: cc.runID, T: now, Checkpoints: make([]float64, len(cc.checkpoints))}
	for i, cp := range cc.checkpoints {
		s := cp.Score()
		snap.Checkpoints[i] = s
		snap.Total += s
	}
	return snap
}

func (cc *CompetitionController) totalLocked() float64 {
	var total float64
	for _, cp := range cc.checkpoints {
		total += cp.Score()
	}
	return total
}

// Current returns the active checkpoint number, 0 when idle.
func (cc *CompetitionController) Current() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.current
}

// Running reports whether a task is in progress.
func (cc *CompetitionController) Running() bool {
	return cc.Current() != 0
}

// Enabled reports whether the competition loaded with a usable configuration.
func (cc *CompetitionController) Enabled() bool {
	return cc.enabled
}

// Checkpoints returns the configured stages in order.
func (cc *CompetitionController) Checkpoints() []Checkpoint {
	return append([]Checkpoint(nil), cc.checkpoints...)
}

// String summarises the controller state for logs.
func (cc *CompetitionController) String() string {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return fmt.Sprintf("competition(run=%s stage=%d/%d)", cc.runID, cc.current, len(cc.checkpoints))
}

// newRunID returns a time-ordered UUID v7, falling back to v4.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
