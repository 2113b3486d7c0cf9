package svc_sim

import (
	"fmt"
	"sync"
)

type fakeClock struct {
	t float64
}

func (c *fakeClock) SimTime() float64 { return c.t }

type zoneRequest struct {
	ns     string
	enable bool
}

// fakeZones records requests and lets the test decide when replies and
// contains signals arrive.
type fakeZones struct {
	subs         map[string][]func(bool)
	requests     []zoneRequest
	pending      []func(bool)
	unsubscribed int
	subErr       error
}

func newFakeZones() *fakeZones {
	return &fakeZones{subs: map[string][]func(bool){}}
}

func (z *fakeZones) Subscribe(ns string, cb func(bool)) (Subscription, error) {
	if z.subErr != nil {
		return nil, z.subErr
	}
	z.subs[ns] = append(z.subs[ns], cb)
	return &fakeSub{z: z, ns: ns, idx: len(z.subs[ns]) - 1}, nil
}

func (z *fakeZones) RequestEnable(ns string, enable bool, onReply func(bool)) {
	z.requests = append(z.requests, zoneRequest{ns: ns, enable: enable})
	z.pending = append(z.pending, onReply)
}

// reply answers every outstanding enable request.
func (z *fakeZones) reply(ok bool) {
	pending := z.pending
	z.pending = nil
	for _, cb := range pending {
		cb(ok)
	}
}

func (z *fakeZones) signal(ns string, v bool) {
	for _, cb := range z.subs[ns] {
		if cb != nil {
			cb(v)
		}
	}
}

type fakeSub struct {
	z   *fakeZones
	ns  string
	idx int
}

func (s *fakeSub) Unsubscribe() {
	if s.z.subs[s.ns][s.idx] != nil {
		s.z.subs[s.ns][s.idx] = nil
		s.z.unsubscribed++
	}
}

// recordLogger keeps every line so tests can assert on warnings.
type recordLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
	errs  []string
}

func (l *recordLogger) Infof(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
}
