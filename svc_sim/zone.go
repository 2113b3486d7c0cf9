package svc_sim

import (
	"fmt"
	"sort"
	"sync"
)

// ZoneBus is an in-process ZoneClient backed by contains detectors that
// watch one entity each. Enable replies are queued and delivered on the next
// Step, like a transport round trip.
type ZoneBus struct {
	mu      sync.Mutex
	world   World
	log     Logger
	zones   map[string]*containZone
	pending []func()
	nextSub int
}

type containZone struct {
	cfg       ZoneConfig
	box       Box
	enabled   bool
	contains  bool
	published bool
	subs      map[int]func(bool)
}

// NewZoneBus creates one detector per zone config.
func NewZoneBus(cfgs []ZoneConfig, world World, log Logger) *ZoneBus {
	b := &ZoneBus{world: world, log: orNop(log), zones: map[string]*containZone{}}
	for _, zc := range cfgs {
		b.zones[zc.Namespace] = &containZone{
			cfg:  zc,
			box:  BoxAround(vec(zc.Center), vec(zc.Size)),
			subs: map[int]func(bool){},
		}
	}
	return b
}

// Subscribe registers onContain for the zone's contains signal.
func (b *ZoneBus) Subscribe(ns string, onContain func(bool)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	z, ok := b.zones[ns]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", ErrUnknownZone, ns)
	}
	b.nextSub++
	z.subs[b.nextSub] = onContain
	return &zoneSub{bus: b, ns: ns, id: b.nextSub}, nil
}

// RequestEnable queues an enable or disable request for the zone.
func (b *ZoneBus) RequestEnable(ns string, enable bool, onReply func(ok bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, func() {
		b.mu.Lock()
		z, ok := b.zones[ns]
		if ok {
			z.enabled = enable
			z.published = false
		}
		b.mu.Unlock()
		if !ok {
			b.log.Warnf("Enable request for unknown zone [%s]", ns)
		}
		if onReply != nil {
			onReply(ok)
		}
	})
}

// Step delivers queued replies, then publishes the contains signal of every
// enabled zone whose state changed.
func (b *ZoneBus) Step() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, reply := range pending {
		reply()
	}

	type delivery struct {
		cb func(bool)
		v  bool
	}
	var out []delivery

	b.mu.Lock()
	for _, ns := range b.namespacesLocked() {
		z := b.zones[ns]
		if !z.enabled {
			continue
		}
		m, ok := b.world.Model(z.cfg.Entity)
		contains := ok && z.box.Contains(m.Pose().Pos)
		if z.published && contains == z.contains {
			continue
		}
		z.contains, z.published = contains, true
		for _, id := range sortedIDs(z.subs) {
			out = append(out, delivery{cb: z.subs[id], v: contains})
		}
	}
	b.mu.Unlock()

	for _, d := range out {
		d.cb(d.v)
	}
}

// Enabled reports whether the zone's detector is running.
func (b *ZoneBus) Enabled(ns string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	z, ok := b.zones[ns]
	return ok && z.enabled
}

// Subscribers returns the number of open subscriptions on a zone.
func (b *ZoneBus) Subscribers(ns string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if z, ok := b.zones[ns]; ok {
		return len(z.subs)
	}
	return 0
}

func (b *ZoneBus) namespacesLocked() []string {
	out := make([]string, 0, len(b.zones))
	for ns := range b.zones {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func sortedIDs(m map[int]func(bool)) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type zoneSub struct {
	bus  *ZoneBus
	ns   string
	id   int
	once sync.Once
}

func (s *zoneSub) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if z, ok := s.bus.zones[s.ns]; ok {
			delete(z.subs, s.id)
		}
	})
}
