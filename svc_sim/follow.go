package svc_sim

import (
	"fmt"
	"math"
	"sync"
)

const (
	// obstacleVerticalMargin inflates obstacle boxes vertically so height
	// differences never hide an obstacle.
	obstacleVerticalMargin = 5.0

	actorRoll = math.Pi / 2
)

// FollowController walks a guest actor toward the robot it was handed to.
type FollowController struct {
	mu sync.Mutex

	Cfg     FollowConfig
	actor   Actor
	world   World
	clock   Clock
	log     Logger
	enabled bool
	ignore  map[string]struct{}

	target     string
	lastUpdate float64
}

// NewFollowController binds cfg to actor. An invalid cfg leaves the
// controller loaded but disabled.
func NewFollowController(cfg FollowConfig, actor Actor, world World, clock Clock, log Logger) *FollowController {
	fc := &FollowController{
		Cfg:     cfg,
		actor:   actor,
		world:   world,
		clock:   clock,
		log:     orNop(log),
		enabled: true,
		ignore:  map[string]struct{}{},
	}

	if err := cfg.Validate(); err != nil {
		fc.log.Errorf("Guest [%s] follow disabled: %v", cfg.Actor, err)
		fc.enabled = false
	}

	fc.ignore[actor.Name()] = struct{}{}
	for _, name := range cfg.IgnoreObstacles {
		fc.ignore[name] = struct{}{}
	}

	if err := actor.SetAnimation(cfg.Animation); err != nil {
		fc.log.Errorf("Skeleton animation [%s] not found in Actor [%s]: %v", cfg.Animation, actor.Name(), err)
	}
	return fc
}

// Name returns the guest identity requests are matched against.
func (fc *FollowController) Name() string {
	return fc.actor.Name()
}

// Target returns the followed model name and whether one is set.
func (fc *FollowController) Target() (string, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.target, fc.target != ""
}

// Following reports whether the guest currently has a target.
func (fc *FollowController) Following() bool {
	_, ok := fc.Target()
	return ok
}

// Reset clears the target and the update clock.
func (fc *FollowController) Reset() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.target = ""
	fc.lastUpdate = 0
}

// Advance moves the actor one tick toward its target.
func (fc *FollowController) Advance() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	now := fc.clock.SimTime()
	dt := now - fc.lastUpdate
	fc.lastUpdate = now

	if !fc.enabled || fc.target == "" {
		return
	}
	if fc.obstacleOnPathLocked() {
		return
	}

	target, ok := fc.world.Model(fc.target)
	if !ok {
		fc.log.Warnf("Target [%s] left the world, guest [%s] stopped following", fc.target, fc.actor.Name())
		fc.target = ""
		return
	}

	pose := fc.actor.Pose()
	start := pose.Pos
	dir := target.Pose().Pos.Sub(start)
	dist := dir.Norm()

	if dist <= fc.Cfg.MinDistance {
		return
	}
	if dist > fc.Cfg.MaxDistance {
		fc.log.Warnf("Robot too far, guest [%s] stopped following", fc.actor.Name())
		fc.target = ""
		return
	}

	yaw := NormalizeAngle(math.Atan2(dir.Y, dir.X) + math.Pi/2)

	pose.Pos = start.Add(dir.Normalize().Mul(fc.Cfg.Velocity * dt))
	pose.Pos.Z = start.Z
	pose.Roll, pose.Pitch, pose.Yaw = actorRoll, 0, yaw

	traveled := pose.Pos.Sub(start).Norm()
	fc.actor.SetPose(pose)
	fc.actor.SetScriptTime(fc.actor.ScriptTime() + traveled*fc.Cfg.AnimationFactor)
}

// ObstacleOnPath reports whether the actor stands inside any inflated
// obstacle box.
func (fc *FollowController) ObstacleOnPath() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.obstacleOnPathLocked()
}

func (fc *FollowController) obstacleOnPathLocked() bool {
	pos := fc.actor.Pose().Pos
	for _, m := range fc.world.Models() {
		if _, skip := fc.ignore[m.Name()]; skip {
			continue
		}
		bb := m.BoundingBox().Expanded(fc.Cfg.ObstacleMargin).ExpandedZ(obstacleVerticalMargin)
		if bb.Contains(pos) {
			return true
		}
	}
	return false
}

// OnPickUpRequest makes the guest follow req.RobotID when it is close enough.
func (fc *FollowController) OnPickUpRequest(req PickUpRequest) (GuestResponse, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if req.GuestID != fc.actor.Name() {
		fc.log.Warnf("Wrong guest name: [%s]", req.GuestID)
		return GuestResponse{Success: false}, fmt.Errorf("%w: [%s]", ErrWrongGuest, req.GuestID)
	}
	if !fc.enabled {
		return GuestResponse{Success: false}, ErrFollowDisabled
	}

	model, ok := fc.world.Model(req.RobotID)
	if !ok {
		fc.log.Warnf("Failed to find model: [%s]", req.RobotID)
		return GuestResponse{Success: false}, fmt.Errorf("%w: [%s]", ErrUnknownModel, req.RobotID)
	}

	diff := fc.actor.Pose().Pos.Sub(model.Pose().Pos)
	diff.Z = 0
	if d := diff.Norm(); d > fc.Cfg.PickUpRadius {
		fc.log.Warnf("Robot too far from guest (%.2f > %.2f)", d, fc.Cfg.PickUpRadius)
		return GuestResponse{Success: false}, fmt.Errorf("%w: %.2f m", ErrOutOfReach, d)
	}

	fc.target = req.RobotID
	fc.log.Infof("Guest [%s] picked up by [%s]", fc.actor.Name(), req.RobotID)
	return GuestResponse{Success: true}, nil
}

// OnDropOffRequest makes the guest stop following.
func (fc *FollowController) OnDropOffRequest(req DropOffRequest) (GuestResponse, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if req.GuestID != fc.actor.Name() {
		fc.log.Warnf("Wrong guest name: [%s]", req.GuestID)
		return GuestResponse{Success: false}, fmt.Errorf("%w: [%s]", ErrWrongGuest, req.GuestID)
	}

	fc.target = ""
	fc.log.Infof("Guest [%s] dropped off", fc.actor.Name())
	return GuestResponse{Success: true}, nil
}
