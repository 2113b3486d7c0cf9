package svc_sim

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"time"
)

const vizShutdownTimeout = 2 * time.Second

// VizConfig controls the optional expvar endpoint.
type VizConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// VizMetrics serves the live score and guest poses on /debug/vars until the
// context given to StartViz is cancelled.
type VizMetrics struct {
	score  *expvar.Map
	guests *expvar.Map
	addr   net.Addr
	done   chan struct{}
}

// StartViz listens on cfg.Addr and serves expvar there. It returns nil when
// the endpoint is disabled. The expvar names are process-wide, so a second
// endpoint shares them with the first.
func StartViz(ctx context.Context, cfg VizConfig, log Logger) (*VizMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	log = orNop(log)
	if cfg.Addr == "" {
		cfg.Addr = defaultVizAddr
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("viz listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	v := &VizMetrics{
		score:  expvarMap("score"),
		guests: expvarMap("guests"),
		addr:   ln.Addr(),
		done:   make(chan struct{}),
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Viz server stopped: %v", err)
		}
	}()
	go func() {
		defer close(v.done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), vizShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Warnf("Viz shutdown: %v", err)
		}
	}()

	log.Infof("Viz endpoint on http://%s/debug/vars", v.addr)
	return v, nil
}

// Addr is the address the endpoint listens on.
func (v *VizMetrics) Addr() net.Addr { return v.addr }

// Done is closed once the endpoint has shut down.
func (v *VizMetrics) Done() <-chan struct{} { return v.done }

// UpdateScore publishes the latest score snapshot.
func (v *VizMetrics) UpdateScore(snap ScoreSnapshot, stage int) {
	if v == nil {
		return
	}
	storeFloat(v.score, "total", snap.Total)
	storeFloat(v.score, "stage", float64(stage))
	storeFloat(v.score, "t", snap.T)
	for i, s := range snap.Checkpoints {
		storeFloat(v.score, fmt.Sprintf("cp%d", i+1), s)
	}
}

// UpdateGuests publishes each guest's pose and follow state.
func (v *VizMetrics) UpdateGuests(sim *Sim) {
	if v == nil {
		return
	}
	for _, name := range sim.guestNames() {
		g := sim.guests[name]
		p := g.actor.Pose()
		following := 0.0
		if g.Following() {
			following = 1
		}
		storeFloat(v.guests, name+".x", p.Pos.X)
		storeFloat(v.guests, name+".y", p.Pos.Y)
		storeFloat(v.guests, name+".yaw", p.Yaw)
		storeFloat(v.guests, name+".following", following)
	}
}

// expvarMap returns the published map called name, publishing it on first use.
func expvarMap(name string) *expvar.Map {
	if m, ok := expvar.Get(name).(*expvar.Map); ok {
		return m
	}
	return expvar.NewMap(name)
}

func storeFloat(m *expvar.Map, key string, value float64) {
	f, ok := m.Get(key).(*expvar.Float)
	if !ok {
		f = new(expvar.Float)
		m.Set(key, f)
	}
	f.Set(value)
}
