package app

import (
	"log"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// SupervisorConfig carries the time-driven policy: heartbeat cadence, how
// long a room may sit without a host, and the absolute room age cap.
type SupervisorConfig struct {
	Interval          time.Duration
	HeartbeatInterval time.Duration
	IdleTTL           time.Duration
	MaxRoomAge        time.Duration
}

func (cfg SupervisorConfig) withDefaults() SupervisorConfig {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.MaxRoomAge == 0 {
		cfg.MaxRoomAge = 2 * time.Hour
	}
	return cfg
}

// Supervisor is the only component with a time-driven trigger. Each tick it
// pings stale handles, evicts dead ones, and reclaims abandoned rooms.
// Sweeps operate on a snapshot of controllers, never a lock held across the
// whole pass, so they cannot block new admissions.
type Supervisor struct {
	cfg      SupervisorConfig
	registry *Registry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSupervisor(registry *Registry, cfg SupervisorConfig) *Supervisor {
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		registry: registry,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *Supervisor) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepNow()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight sweep to complete.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// SweepNow runs one sweep pass immediately. It is idempotent and also
// serves the admin trigger.
func (s *Supervisor) SweepNow() {
	now := time.Now()
	pingBefore := now.Add(-s.cfg.HeartbeatInterval)
	// Silent past two missed heartbeat intervals means dead.
	evictBefore := now.Add(-2 * s.cfg.HeartbeatInterval)

	for _, ctrl := range s.registry.Controllers() {
		ctrl.SweepHandles(pingBefore, evictBefore)

		snap := ctrl.Snapshot()
		if snap.Status == domain.StatusFinished {
			continue
		}
		expired := now.Sub(snap.CreatedAt) > s.cfg.MaxRoomAge
		abandoned := !snap.HostConnected && now.Sub(snap.LastActivity) > s.cfg.IdleTTL
		if expired || abandoned {
			log.Printf("room %s reclaimed (expired=%v abandoned=%v)", snap.Code, expired, abandoned)
			ctrl.ForceFinish()
		}
	}

	s.registry.Limiter().Prune(s.cfg.IdleTTL)
}
