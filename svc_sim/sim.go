package svc_sim

import "sort"

// Sim wires the world, zones and both controllers into one tick.
type Sim struct {
	world       *SimWorld
	zones       *ZoneBus
	competition *CompetitionController
	guests      map[string]*FollowController
	log         Logger
}

// NewSim loads every subsystem from cfg. A subsystem whose configuration is
// unusable is logged and left out; the rest still runs.
func NewSim(cfg AppConfig, log Logger) *Sim {
	log = orNop(log)
	world := NewSimWorld(cfg.World)
	s := &Sim{
		world:  world,
		zones:  NewZoneBus(cfg.World.Zones, world, log),
		guests: map[string]*FollowController{},
		log:    log,
	}

	comp, err := NewCompetitionController(cfg.Competition, CheckpointDeps{Clock: world, Zones: s.zones, Log: log})
	if err != nil {
		log.Errorf("Competition not loaded: %v", err)
	} else {
		s.competition = comp
	}

	for _, g := range cfg.Guests {
		actor, ok := world.Actor(g.Actor)
		if !ok {
			log.Errorf("Guest actor [%s] not found in world", g.Actor)
			continue
		}
		fc := NewFollowController(g, actor, world, world, log)
		s.guests[fc.Name()] = fc
	}
	return s
}

// Tick advances simulation time by dt and steps every subsystem once. It
// returns a score snapshot when one is due.
func (s *Sim) Tick(dt float64) (ScoreSnapshot, bool) {
	s.world.Step(dt)
	s.zones.Step()
	for _, name := range s.guestNames() {
		s.guests[name].Advance()
	}
	if s.competition == nil {
		return ScoreSnapshot{}, false
	}
	s.competition.Advance()
	return s.competition.SnapshotScore()
}

// Reply is the JSON answer to a request datagram.
type Reply struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	PickUpLocation string `json:"pick_up_location,omitempty"`
}

// Handle executes one request. Errors end up in the reply, never returned.
func (s *Sim) Handle(req Request) Reply {
	switch req.Op {
	case OpNewTask:
		if s.competition == nil {
			return failure(ErrCompetitionDisabled)
		}
		res, err := s.competition.StartTask()
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, RunID: res.RunID, PickUpLocation: res.PickUpLocation}

	case OpPickUp:
		g, err := s.guest(req.PickUp.GuestID)
		if err != nil {
			return failure(err)
		}
		res, err := g.OnPickUpRequest(req.PickUp)
		return guestReply(res, err)

	case OpDropOff:
		g, err := s.guest(req.DropOff.GuestID)
		if err != nil {
			return failure(err)
		}
		res, err := g.OnDropOffRequest(req.DropOff)
		return guestReply(res, err)

	case OpPose:
		if err := s.world.SetModelPose(req.Pose.Name, req.Pose.Pos, req.Pose.Yaw); err != nil {
			return failure(err)
		}
		return Reply{Success: true}

	default:
		return failure(ErrUnknownRequest)
	}
}

// guest finds the follow controller for a guest name.
func (s *Sim) guest(name string) (*FollowController, error) {
	g, ok := s.guests[name]
	if !ok {
		s.log.Warnf("Wrong guest name: [%s]", name)
		return nil, ErrWrongGuest
	}
	return g, nil
}

func (s *Sim) guestNames() []string {
	names := make([]string, 0, len(s.guests))
	for n := range s.guests {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// World returns the kinematic world.
func (s *Sim) World() *SimWorld { return s.world }

// Competition returns the competition controller, nil when it failed to load.
func (s *Sim) Competition() *CompetitionController { return s.competition }

// Guest returns the follow controller of the named guest.
func (s *Sim) Guest(name string) (*FollowController, bool) {
	g, ok := s.guests[name]
	return g, ok
}

func failure(err error) Reply {
	return Reply{Success: false, Error: err.Error()}
}

func guestReply(res GuestResponse, err error) Reply {
	if err != nil {
		return Reply{Success: res.Success, Error: err.Error()}
	}
	return Reply{Success: res.Success}
}
