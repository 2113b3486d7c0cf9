package svc_sim

import "errors"

var (
	ErrCompetitionRunning    = errors.New("competition is already running")
	ErrCompetitionDisabled   = errors.New("competition not initialized")
	ErrNoCheckpoints         = errors.New("competition has no checkpoints")
	ErrUnknownCheckpointKind = errors.New("unknown checkpoint kind")

	ErrFollowDisabled = errors.New("follow controller disabled")
	ErrWrongGuest     = errors.New("wrong guest name")
	ErrUnknownModel   = errors.New("model not found")
	ErrActorModel     = errors.New("model is an actor driven by its follow controller")
	ErrOutOfReach     = errors.New("robot too far from guest")

	ErrUnknownZone    = errors.New("unknown zone namespace")
	ErrUnknownRequest = errors.New("unknown request")
)
