package svc_sim

import (
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r3"
)

// Pose is a world-frame position with roll/pitch/yaw orientation in radians.
//
// Conventions:
//   - Z is up; motion happens in the X/Y plane.
//   - Actors are authored Y-up and Z-front, so a walking actor carries a
//     constant roll of pi/2 and its heading lives in Yaw.
type Pose struct {
	Pos   r3.Vector
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Box is an axis-aligned bounding box.
type Box struct {
	X r1.Interval
	Y r1.Interval
	Z r1.Interval
}

// BoxAround returns the box of the given size centred on center.
func BoxAround(center, size r3.Vector) Box {
	return Box{
		X: r1.Interval{Lo: center.X - size.X/2, Hi: center.X + size.X/2},
		Y: r1.Interval{Lo: center.Y - size.Y/2, Hi: center.Y + size.Y/2},
		Z: r1.Interval{Lo: center.Z - size.Z/2, Hi: center.Z + size.Z/2},
	}
}

// Expanded grows the box by margin on every side.
func (b Box) Expanded(margin float64) Box {
	return Box{X: b.X.Expanded(margin), Y: b.Y.Expanded(margin), Z: b.Z.Expanded(margin)}
}

// ExpandedZ grows the box by margin above and below only.
func (b Box) ExpandedZ(margin float64) Box {
	return Box{X: b.X, Y: b.Y, Z: b.Z.Expanded(margin)}
}

// Contains reports whether p lies inside the box, boundary included.
func (b Box) Contains(p r3.Vector) bool {
	return b.X.Contains(p.X) && b.Y.Contains(p.Y) && b.Z.Contains(p.Z)
}

// NormalizeAngle wraps a into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	n := math.Atan2(math.Sin(a), math.Cos(a))
	if n == -math.Pi {
		return math.Pi
	}
	return n
}

// Clock supplies the monotonic simulation time in seconds.
type Clock interface {
	SimTime() float64
}

// Model is a read-only view of an entity owned by the physics collaborator.
type Model interface {
	Name() string
	Pose() Pose
	BoundingBox() Box
}

// World resolves models by name and lists the dynamic models in the scene.
type World interface {
	Model(name string) (Model, bool)
	Models() []Model
}

// Actor is the animated model a FollowController drives.
type Actor interface {
	Model
	SetPose(p Pose)
	ScriptTime() float64
	SetScriptTime(t float64)
	SetAnimation(name string) error
}

// Subscription is an open contains-signal subscription.
type Subscription interface {
	Unsubscribe()
}

// ZoneClient is the transport used to talk to a zone's contains detector.
//
// Callbacks may run on any goroutine; they must only latch state.
type ZoneClient interface {
	Subscribe(ns string, onContain func(contains bool)) (Subscription, error)
	RequestEnable(ns string, enable bool, onReply func(ok bool))
}

// ContainState is the lifecycle of a contains-driven checkpoint.
type ContainState int

const (
	ContainIdle ContainState = iota + 1
	ContainEnabling
	ContainEnabled
	ContainDone
	ContainInert
)

func (s ContainState) String() string {
	switch s {
	case ContainIdle:
		return "IDLE"
	case ContainEnabling:
		return "ENABLING"
	case ContainEnabled:
		return "ENABLED"
	case ContainDone:
		return "DONE"
	case ContainInert:
		return "INERT"
	default:
		return fmt.Sprintf("ContainState(%d)", int(s))
	}
}

// ScoreSnapshot is one publication of the competition score.
type ScoreSnapshot struct {
	RunID       string
	T           float64
	Checkpoints []float64
	Total       float64
}

// TaskResponse is returned to a successful new-task request.
type TaskResponse struct {
	RunID          string `json:"run_id"`
	PickUpLocation string `json:"pick_up_location"`
}

// PickUpRequest asks guest GuestID to start following RobotID.
type PickUpRequest struct {
	GuestID string `json:"guest"`
	RobotID string `json:"robot"`
}

// DropOffRequest asks guest GuestID to stop following.
type DropOffRequest struct {
	GuestID string `json:"guest"`
}

// GuestResponse is the reply to pick-up and drop-off requests.
type GuestResponse struct {
	Success bool `json:"success"`
}
