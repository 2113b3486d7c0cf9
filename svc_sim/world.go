package svc_sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
)

// SimWorld is a kinematic stand-in for the physics engine: models have a
// pose and a box, time advances in fixed steps, nothing collides.
type SimWorld struct {
	mu     sync.RWMutex
	t      float64
	models map[string]*simModel
}

type simModel struct {
	name       string
	pose       Pose
	size       r3.Vector
	actor      bool
	animations map[string]struct{}
	animation  string
	scriptTime float64
}

func (m *simModel) box() Box {
	return BoxAround(m.pose.Pos, m.size)
}

// modelView is an immutable copy of a model handed to readers.
type modelView struct {
	name string
	pose Pose
	bb   Box
}

func (v modelView) Name() string     { return v.name }
func (v modelView) Pose() Pose       { return v.pose }
func (v modelView) BoundingBox() Box { return v.bb }

// NewSimWorld places the configured models at time zero.
func NewSimWorld(cfg WorldConfig) *SimWorld {
	w := &SimWorld{models: map[string]*simModel{}}
	for _, mc := range cfg.Models {
		m := &simModel{
			name:       mc.Name,
			pose:       Pose{Pos: vec(mc.Position), Yaw: mc.Yaw},
			size:       vec(mc.Size),
			actor:      mc.Actor,
			animations: map[string]struct{}{},
		}
		if mc.Actor {
			m.pose.Roll = actorRoll
		}
		for _, a := range mc.Animations {
			m.animations[a] = struct{}{}
		}
		w.models[mc.Name] = m
	}
	return w
}

// Step advances simulation time by dt seconds.
func (w *SimWorld) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if dt > 0 {
		w.t += dt
	}
}

func (w *SimWorld) SimTime() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.t
}

func (w *SimWorld) Model(name string) (Model, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.models[name]
	if !ok {
		return nil, false
	}
	return modelView{name: m.name, pose: m.pose, bb: m.box()}, true
}

// Models lists every model ordered by name.
func (w *SimWorld) Models() []Model {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Model, 0, len(w.models))
	for _, m := range w.models {
		out = append(out, modelView{name: m.name, pose: m.pose, bb: m.box()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SetModelPose moves a model, used for externally driven robots. Actors are
// only moved through their Actor handle.
func (w *SimWorld) SetModelPose(name string, pos r3.Vector, yaw float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.models[name]
	if !ok {
		return fmt.Errorf("%w: [%s]", ErrUnknownModel, name)
	}
	if m.actor {
		return fmt.Errorf("%w: [%s]", ErrActorModel, name)
	}
	m.pose.Pos = pos
	m.pose.Yaw = NormalizeAngle(yaw)
	return nil
}

// Actor returns a handle to the named actor model.
func (w *SimWorld) Actor(name string) (*SimActor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.models[name]
	if !ok || !m.actor {
		return nil, false
	}
	return &SimActor{w: w, name: name}, true
}

// SimActor implements Actor on top of a SimWorld model.
type SimActor struct {
	w    *SimWorld
	name string
}

func (a *SimActor) model() *simModel { return a.w.models[a.name] }

func (a *SimActor) Name() string { return a.name }

func (a *SimActor) Pose() Pose {
	a.w.mu.RLock()
	defer a.w.mu.RUnlock()
	return a.model().pose
}

func (a *SimActor) BoundingBox() Box {
	a.w.mu.RLock()
	defer a.w.mu.RUnlock()
	return a.model().box()
}

func (a *SimActor) SetPose(p Pose) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.model().pose = p
}

func (a *SimActor) ScriptTime() float64 {
	a.w.mu.RLock()
	defer a.w.mu.RUnlock()
	return a.model().scriptTime
}

func (a *SimActor) SetScriptTime(t float64) {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	a.model().scriptTime = t
}

func (a *SimActor) SetAnimation(name string) error {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	m := a.model()
	if _, ok := m.animations[name]; !ok {
		return fmt.Errorf("actor has %d animations, none named %q", len(m.animations), name)
	}
	m.animation = name
	return nil
}

// Animation returns the active skeleton animation name.
func (a *SimActor) Animation() string {
	a.w.mu.RLock()
	defer a.w.mu.RUnlock()
	return a.model().animation
}
