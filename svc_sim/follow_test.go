package svc_sim

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type followFixture struct {
	fc    *FollowController
	world *SimWorld
	actor *SimActor
	log   *recordLogger
}

// newFollowFixture places the guest at (0,0,1) and the robot at robotPos.
func newFollowFixture(t *testing.T, robotPos r3.Vector, extra []ModelConfig, mutate func(*FollowConfig)) followFixture {
	t.Helper()
	models := append([]ModelConfig{
		{Name: "guest", Position: []float64{0, 0, 1}, Size: []float64{0.5, 0.5, 1.8}, Actor: true, Animations: []string{"animation", "walk"}},
		{Name: "robot", Position: []float64{robotPos.X, robotPos.Y, robotPos.Z}, Size: []float64{0.5, 0.5, 0.5}},
	}, extra...)
	world := NewSimWorld(WorldConfig{Models: models})
	actor, ok := world.Actor("guest")
	require.True(t, ok)

	cfg := DefaultFollowConfig()
	cfg.Actor = "guest"
	if mutate != nil {
		mutate(&cfg)
	}
	log := &recordLogger{}
	fc := NewFollowController(cfg, actor, world, world, log)
	return followFixture{fc: fc, world: world, actor: actor, log: log}
}

func (f followFixture) pickUp(t *testing.T) {
	t.Helper()
	res, err := f.fc.OnPickUpRequest(PickUpRequest{GuestID: "guest", RobotID: "robot"})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestFollowMovesTowardTarget(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	f.world.Step(1)
	f.fc.Advance()

	p := f.actor.Pose()
	assert.InDelta(t, 0.8, p.Pos.X, 1e-9)
	assert.InDelta(t, 0.0, p.Pos.Y, 1e-9)
	assert.Equal(t, 1.0, p.Pos.Z)
	assert.InDelta(t, math.Pi/2, p.Yaw, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Roll, 1e-9)
	assert.InDelta(t, 0.8*5.1, f.actor.ScriptTime(), 1e-9)
	assert.True(t, f.fc.Following())
}

func TestFollowKeepsVerticalCoordinate(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 1, Z: 2.5}, nil, nil)
	f.pickUp(t)

	for i := 0; i < 5; i++ {
		before := f.actor.Pose().Pos
		f.world.Step(0.1)
		f.fc.Advance()
		after := f.actor.Pose().Pos
		assert.Equal(t, before.Z, after.Z)
	}
	assert.NotEqual(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)
}

func TestFollowDisengagesWhenTooFar(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	require.NoError(t, f.world.SetModelPose("robot", r3.Vector{X: 5, Y: 0, Z: 1}, 0))
	f.world.Step(1)
	f.fc.Advance()

	assert.False(t, f.fc.Following())
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)
	require.NotEmpty(t, f.log.warns)
	assert.Contains(t, f.log.warns[len(f.log.warns)-1], "stopped following")

	// Stays disengaged even when the robot comes back.
	require.NoError(t, f.world.SetModelPose("robot", r3.Vector{X: 2, Y: 0, Z: 1}, 0))
	f.world.Step(1)
	f.fc.Advance()
	assert.False(t, f.fc.Following())
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)

	f.pickUp(t)
	assert.True(t, f.fc.Following())
}

func TestFollowHoldsWithinMinDistance(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	f.world.Step(1)
	f.fc.Advance()

	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)
	assert.Zero(t, f.actor.ScriptTime())
	assert.True(t, f.fc.Following())
}

func TestFollowWithoutTargetDoesNotMove(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, nil, nil)
	f.world.Step(1)
	f.fc.Advance()
	assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)
}

func TestFollowHeadingIsNormalized(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: -2, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	f.world.Step(1)
	f.fc.Advance()

	p := f.actor.Pose()
	assert.InDelta(t, -0.8, p.Pos.X, 1e-9)
	assert.InDelta(t, -math.Pi/2, p.Yaw, 1e-9)
}

func TestFollowObstacleBlocksMotion(t *testing.T) {
	crate := ModelConfig{Name: "crate", Position: []float64{0.3, 0, 0}, Size: []float64{0.2, 0.2, 0.2}}

	t.Run("blocked", func(t *testing.T) {
		f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, []ModelConfig{crate}, nil)
		f.pickUp(t)
		assert.True(t, f.fc.ObstacleOnPath())

		f.world.Step(1)
		f.fc.Advance()
		assert.Equal(t, r3.Vector{X: 0, Y: 0, Z: 1}, f.actor.Pose().Pos)
		assert.True(t, f.fc.Following(), "an obstacle pauses, it does not disengage")
	})

	t.Run("ignored", func(t *testing.T) {
		f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, []ModelConfig{crate}, func(c *FollowConfig) {
			c.IgnoreObstacles = []string{"crate"}
		})
		f.pickUp(t)
		assert.False(t, f.fc.ObstacleOnPath())

		f.world.Step(1)
		f.fc.Advance()
		assert.InDelta(t, 0.8, f.actor.Pose().Pos.X, 1e-9)
	})

	t.Run("far away", func(t *testing.T) {
		far := ModelConfig{Name: "crate", Position: []float64{0, 3, 0}, Size: []float64{0.2, 0.2, 0.2}}
		f := newFollowFixture(t, r3.Vector{X: 2, Y: 0, Z: 1}, []ModelConfig{far}, nil)
		assert.False(t, f.fc.ObstacleOnPath())
	})
}

func TestFollowPickUpConditions(t *testing.T) {
	tests := []struct {
		name     string
		robotPos r3.Vector
		req      PickUpRequest
		wantErr  error
	}{
		{
			name:     "success",
			robotPos: r3.Vector{X: 1.5, Y: 0, Z: 1},
			req:      PickUpRequest{GuestID: "guest", RobotID: "robot"},
		},
		{
			name:     "vertical offset is ignored",
			robotPos: r3.Vector{X: 1.2, Y: 1.2, Z: 30},
			req:      PickUpRequest{GuestID: "guest", RobotID: "robot"},
		},
		{
			name:     "wrong guest",
			robotPos: r3.Vector{X: 1, Y: 0, Z: 1},
			req:      PickUpRequest{GuestID: "other", RobotID: "robot"},
			wantErr:  ErrWrongGuest,
		},
		{
			name:     "unknown robot",
			robotPos: r3.Vector{X: 1, Y: 0, Z: 1},
			req:      PickUpRequest{GuestID: "guest", RobotID: "ghost"},
			wantErr:  ErrUnknownModel,
		},
		{
			name:     "out of reach",
			robotPos: r3.Vector{X: 2.5, Y: 0, Z: 1},
			req:      PickUpRequest{GuestID: "guest", RobotID: "robot"},
			wantErr:  ErrOutOfReach,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFollowFixture(t, tt.robotPos, nil, nil)
			res, err := f.fc.OnPickUpRequest(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, res.Success)
				assert.False(t, f.fc.Following())
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Success)
			target, ok := f.fc.Target()
			assert.True(t, ok)
			assert.Equal(t, "robot", target)
		})
	}
}

func TestFollowFailedPickUpKeepsExistingTarget(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	_, err := f.fc.OnPickUpRequest(PickUpRequest{GuestID: "guest", RobotID: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownModel)
	target, _ := f.fc.Target()
	assert.Equal(t, "robot", target)
}

func TestFollowDropOff(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)

	res, err := f.fc.OnDropOffRequest(DropOffRequest{GuestID: "someone"})
	assert.ErrorIs(t, err, ErrWrongGuest)
	assert.False(t, res.Success)
	assert.True(t, f.fc.Following())

	res, err = f.fc.OnDropOffRequest(DropOffRequest{GuestID: "guest"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, f.fc.Following())

	res, err = f.fc.OnDropOffRequest(DropOffRequest{GuestID: "guest"})
	require.NoError(t, err)
	assert.True(t, res.Success, "drop-off without a target still succeeds")
}

func TestFollowReset(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, nil)
	f.pickUp(t)
	f.fc.Reset()
	assert.False(t, f.fc.Following())
}

func TestFollowInvalidConfigDisables(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, func(c *FollowConfig) {
		c.MinDistance = 5
		c.MaxDistance = 1
	})
	require.NotEmpty(t, f.log.errs)

	res, err := f.fc.OnPickUpRequest(PickUpRequest{GuestID: "guest", RobotID: "robot"})
	assert.ErrorIs(t, err, ErrFollowDisabled)
	assert.False(t, res.Success)
}

func TestFollowAnimation(t *testing.T) {
	f := newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, func(c *FollowConfig) {
		c.Animation = "walk"
	})
	assert.Equal(t, "walk", f.actor.Animation())
	assert.Empty(t, f.log.errs)

	f = newFollowFixture(t, r3.Vector{X: 1.5, Y: 0, Z: 1}, nil, func(c *FollowConfig) {
		c.Animation = "moonwalk"
	})
	require.Len(t, f.log.errs, 1)
	assert.Contains(t, f.log.errs[0], "moonwalk")
}
