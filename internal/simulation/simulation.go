package simulation

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/reckoning/internal/simulation"

// Observer receives per-tick statistics.
type Observer interface {
	TickCompleted(duration time.Duration, events int, entities int, updated int)
}

type nopObserver struct{}

func (nopObserver) TickCompleted(time.Duration, int, int, int) {}

// Config holds spawn defaults.
type Config struct {
	SpawnHealth   uint64
	SpawnPosition protocol.Vec3
}

func DefaultConfig() Config {
	return Config{SpawnHealth: 100}
}

type Option func(*Simulation)

func WithObserver(obs Observer) Option {
	return func(s *Simulation) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// Status is a point-in-time view of the simulation.
type Status struct {
	Tick     uint64    `json:"tick"`
	TickTime time.Time `json:"tick_time"`
	Entities int       `json:"entities"`
	Queued   int       `json:"queued"`
}

type dirtyMask uint8

const (
	dirtyHealth dirtyMask = 1 << iota
	dirtyPosition
	dirtyAll = dirtyHealth | dirtyPosition
)

type entity struct {
	health    uint64
	position  protocol.Vec3
	dirty     dirtyMask
	announced bool
}

type Simulation struct {
	cfg      Config
	observer Observer
	tracer   trace.Tracer

	queueMu sync.Mutex
	queue   []Event

	// Guards everything below. Only Tick writes; Snapshot and Status read.
	mu        sync.RWMutex
	entities  map[uuid.UUID]*entity
	order     []uuid.UUID
	despawned []uuid.UUID
	tick      uint64
	tickTime  time.Time
}

// New builds a Simulation. A zero SpawnHealth takes the default, since zero
// health is the despawn marker.
func New(cfg Config, opts ...Option) *Simulation {
	if cfg.SpawnHealth == 0 {
		cfg.SpawnHealth = DefaultConfig().SpawnHealth
	}
	s := &Simulation{
		cfg:      cfg,
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		entities: make(map[uuid.UUID]*entity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PushEvent queues e for the next tick. Safe for concurrent use.
func (s *Simulation) PushEvent(e Event) {
	s.queueMu.Lock()
	s.queue = append(s.queue, e)
	s.queueMu.Unlock()
}

func (s *Simulation) drain() []Event {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	events := s.queue
	s.queue = nil
	return events
}

// Tick applies every queued event and returns the components that changed.
// Despawned entities are reported with zero health. The update is empty when
// nothing changed.
func (s *Simulation) Tick(now time.Time) protocol.ServerWorldUpdate {
	start := time.Now()
	events := s.drain()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	s.tickTime = now
	for _, e := range events {
		s.apply(e)
	}
	update := s.collect()
	s.observer.TickCompleted(time.Since(start), len(events), len(s.entities), len(update.Updates))
	if len(events) > 0 {
		log.Trace().
			Uint64("tick", s.tick).
			Int("events", len(events)).
			Int("updated", len(update.Updates)).
			Msg("simulation.Simulation.Tick")
	}
	return update
}

func (s *Simulation) apply(e Event) {
	switch e := e.(type) {
	case Join:
		if _, ok := s.entities[e.Session]; ok {
			log.Debug().Stringer("event", e).Msg("simulation.Simulation.apply duplicate join")
			return
		}
		s.entities[e.Session] = &entity{
			health:   s.cfg.SpawnHealth,
			position: s.cfg.SpawnPosition,
			dirty:    dirtyAll,
		}
		s.order = append(s.order, e.Session)
		s.despawned = removeID(s.despawned, e.Session)
	case Leave:
		ent, ok := s.entities[e.Session]
		if !ok {
			return
		}
		delete(s.entities, e.Session)
		s.order = removeID(s.order, e.Session)
		if ent.announced {
			s.despawned = append(s.despawned, e.Session)
		}
	case Move:
		ent, ok := s.entities[e.Session]
		if !ok {
			log.Debug().Stringer("event", e).Msg("simulation.Simulation.apply unknown entity")
			return
		}
		if ent.position != e.Position {
			ent.position = e.Position
			ent.dirty |= dirtyPosition
		}
	}
}

func (s *Simulation) collect() protocol.ServerWorldUpdate {
	var update protocol.ServerWorldUpdate
	for _, id := range s.order {
		ent := s.entities[id]
		if ent.dirty == 0 {
			continue
		}
		update.Updates = append(update.Updates, ent.components(id, ent.dirty))
		ent.dirty = 0
		ent.announced = true
	}
	for _, id := range s.despawned {
		update.Updates = append(update.Updates, protocol.EntityUpdate{
			EntityID:   id,
			Components: []protocol.EntityComponent{protocol.Health(0)},
		})
	}
	s.despawned = s.despawned[:0]
	return update
}

func (e *entity) components(id uuid.UUID, mask dirtyMask) protocol.EntityUpdate {
	out := protocol.EntityUpdate{EntityID: id}
	if mask&dirtyHealth != 0 {
		out.Components = append(out.Components, protocol.Health(e.health))
	}
	if mask&dirtyPosition != 0 {
		out.Components = append(out.Components, protocol.Position(e.position))
	}
	return out
}

// Snapshot returns every live entity with all of its components.
func (s *Simulation) Snapshot() protocol.ServerWorldUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	update := protocol.ServerWorldUpdate{Updates: make([]protocol.EntityUpdate, 0, len(s.order))}
	for _, id := range s.order {
		update.Updates = append(update.Updates, s.entities[id].components(id, dirtyAll))
	}
	return update
}

func (s *Simulation) Status() Status {
	s.mu.RLock()
	st := Status{Tick: s.tick, TickTime: s.tickTime, Entities: len(s.entities)}
	s.mu.RUnlock()
	s.queueMu.Lock()
	st.Queued = len(s.queue)
	s.queueMu.Unlock()
	return st
}

// Run ticks every tickLength until ctx is done, handing non-empty updates to
// sink on the ticking goroutine.
func (s *Simulation) Run(ctx context.Context, tickLength time.Duration, sink func(context.Context, protocol.ServerWorldUpdate)) error {
	ticker := time.NewTicker(tickLength)
	defer ticker.Stop()
	log.Info().Dur("tick_length", tickLength).Msg("simulation.Simulation.Run started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("tick", s.Status().Tick).Msg("simulation.Simulation.Run stopped")
			return nil
		case now := <-ticker.C:
			s.step(ctx, now, sink)
		}
	}
}

func (s *Simulation) step(ctx context.Context, now time.Time, sink func(context.Context, protocol.ServerWorldUpdate)) {
	ctx, span := s.tracer.Start(ctx, "simulation.tick", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	update := s.Tick(now)
	span.SetAttributes(
		attribute.Int64("simulation.tick", int64(s.Status().Tick)),
		attribute.Int("simulation.updated", len(update.Updates)),
	)
	if len(update.Updates) > 0 && sink != nil {
		sink(ctx, update)
	}
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
