package svc_sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

// Op names a request datagram.
type Op string

const (
	OpNewTask Op = "new_task"
	OpPickUp  Op = "pickup"
	OpDropOff Op = "dropoff"
	OpPose    Op = "pose"
)

// PoseUpdate moves an externally driven model.
type PoseUpdate struct {
	Name string
	Pos  r3.Vector
	Yaw  float64
}

// Request is a decoded request datagram. Only the field matching Op is set.
type Request struct {
	Op      Op
	PickUp  PickUpRequest
	DropOff DropOffRequest
	Pose    PoseUpdate
}

type inbound struct {
	req  Request
	addr *net.UDPAddr
}

// RunLive runs the fixed-rate simulation loop until ctx is cancelled.
func RunLive(ctx context.Context, cfg AppConfig, log Logger) error {
	if cfg.Hz <= 0 {
		return fmt.Errorf("hz must be > 0")
	}
	log = orNop(log)
	sim := NewSim(cfg, log)

	requests := make(chan inbound, 64)
	var conn *net.UDPConn
	if cfg.Live.UDPAddr != "" {
		c, err := startUDPListener(ctx, cfg.Live, requests, log)
		if err != nil {
			return err
		}
		conn = c
	}

	sender, err := NewScoreSender(cfg.Output.UDPAddr)
	if err != nil {
		return multierr.Append(err, closeUDP(conn))
	}
	viz, err := StartViz(ctx, cfg.Viz, log)
	if err != nil {
		return multierr.Combine(err, closeUDP(conn), sender.Close())
	}
	defer func() {
		if err := multierr.Combine(closeUDP(conn), sender.Close()); err != nil {
			log.Warnf("close sockets: %v", err)
		}
	}()

	log.Infof("Simulation running at %.0f Hz", cfg.Hz)
	dt := 1.0 / cfg.Hz
	for {
		tickStart := time.Now()

		drainRequests(sim, requests, conn)

		snap, ok := sim.Tick(dt)
		if ok {
			sender.Send(snap)
			if viz != nil {
				viz.UpdateScore(snap, sim.Competition().Current())
			}
		}
		if viz != nil {
			viz.UpdateGuests(sim)
		}

		if cfg.Log.Enabled {
			fmt.Printf("%8.3f %s", sim.World().SimTime(), traceGuests(sim))
			if c := sim.Competition(); c != nil {
				fmt.Printf(" %s total=%.3f", c, c.Score().Total)
			}
			fmt.Println()
		}

		sleep := mathMax(0, dt-time.Since(tickStart).Seconds())
		select {
		case <-ctx.Done():
			log.Infof("Simulation stopped at %s", formatSimTime(sim.World().SimTime()))
			return nil
		case <-time.After(time.Duration(sleep * float64(time.Second))):
		}
	}
}

// drainRequests executes every queued request on the tick goroutine.
func drainRequests(sim *Sim, requests <-chan inbound, conn *net.UDPConn) {
	for {
		select {
		case in := <-requests:
			reply(conn, in.addr, sim.Handle(in.req))
		default:
			return
		}
	}
}

func reply(conn *net.UDPConn, addr *net.UDPAddr, r Reply) {
	if conn == nil || addr == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	_, _ = conn.WriteToUDP(data, addr)
}

// startUDPListener spawns a goroutine that queues request datagrams for the
// tick loop. Malformed datagrams are answered directly.
func startUDPListener(ctx context.Context, cfg LiveConfig, out chan<- inbound, log Logger) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.UDPAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	bufSize := cfg.ReadBuffer
	if bufSize <= 0 {
		bufSize = defaultReadBuffer
	}

	go readRequests(ctx, conn, bufSize, out, func(from *net.UDPAddr, err error) {
		reply(conn, from, failure(err))
	}, log)

	return conn, nil
}

// datagramReader is the read half of a UDP socket.
type datagramReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// readRetryDelay is the pause after a failed read before the next attempt.
const readRetryDelay = 50 * time.Millisecond

// readRequests decodes datagrams from r and queues them until r is closed or
// ctx is cancelled. Malformed datagrams are passed to reject.
func readRequests(ctx context.Context, r datagramReader, bufSize int, out chan<- inbound, reject func(*net.UDPAddr, error), log Logger) {
	log = orNop(log)
	buf := make([]byte, bufSize)
	for {
		n, from, err := r.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warnf("UDP read failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		req, err := parseRequest(buf[:n])
		if err != nil {
			log.Warnf("Rejected request from %s: %v", from, err)
			reject(from, err)
			continue
		}
		select {
		case out <- inbound{req: req, addr: from}:
		case <-ctx.Done():
			return
		}
	}
}

// parseRequest decodes a JSON request datagram such as
// {"op":"pickup","guest":"guest","robot":"robot"}.
func parseRequest(b []byte) (Request, error) {
	if !gjson.ValidBytes(b) {
		return Request{}, errors.New("payload is not valid JSON")
	}
	doc := gjson.ParseBytes(b)
	op := Op(strings.ToLower(strings.TrimSpace(doc.Get("op").String())))

	switch op {
	case OpNewTask:
		return Request{Op: op}, nil
	case OpPickUp:
		req := PickUpRequest{GuestID: doc.Get("guest").String(), RobotID: doc.Get("robot").String()}
		if req.GuestID == "" || req.RobotID == "" {
			return Request{}, errors.New("pickup needs guest and robot")
		}
		return Request{Op: op, PickUp: req}, nil
	case OpDropOff:
		req := DropOffRequest{GuestID: doc.Get("guest").String()}
		if req.GuestID == "" {
			return Request{}, errors.New("dropoff needs guest")
		}
		return Request{Op: op, DropOff: req}, nil
	case OpPose:
		name := doc.Get("name").String()
		x, y := doc.Get("x"), doc.Get("y")
		if name == "" || !x.Exists() || !y.Exists() {
			return Request{}, errors.New("pose needs name, x and y")
		}
		p := PoseUpdate{
			Name: name,
			Pos:  r3.Vector{X: x.Float(), Y: y.Float(), Z: doc.Get("z").Float()},
			Yaw:  doc.Get("yaw").Float(),
		}
		return Request{Op: op, Pose: p}, nil
	default:
		return Request{}, fmt.Errorf("%w %q", ErrUnknownRequest, op)
	}
}

func traceGuests(sim *Sim) string {
	var sb strings.Builder
	for _, name := range sim.guestNames() {
		g := sim.guests[name]
		p := g.actor.Pose()
		target, _ := g.Target()
		fmt.Fprintf(&sb, "%s(x=%+.3f y=%+.3f yaw=%+.3f target=%q) ", name, p.Pos.X, p.Pos.Y, p.Yaw, target)
	}
	return strings.TrimSpace(sb.String())
}

func closeUDP(conn *net.UDPConn) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// mathMax returns the larger of a or b.
func mathMax(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
