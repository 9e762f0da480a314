package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

const (
	roomCodeLength   = 8
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts     = 100
)

// RegistryConfig bounds the registry under a denial-of-service threat
// model. Zero values are replaced with the original deployment defaults.
type RegistryConfig struct {
	MaxRooms      int
	MaxPlayers    int
	GraceTTL      time.Duration
	BonusFactor   float64
	DrainTimeout  time.Duration
	ResultRetries int
	ResultBackoff time.Duration
}

func (cfg RegistryConfig) withDefaults() RegistryConfig {
	if cfg.MaxRooms == 0 {
		cfg.MaxRooms = 100
	}
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = 50
	}
	if cfg.GraceTTL == 0 {
		cfg.GraceTTL = time.Minute
	}
	if cfg.ResultRetries == 0 {
		cfg.ResultRetries = 2
	}
	if cfg.ResultBackoff == 0 {
		cfg.ResultBackoff = 200 * time.Millisecond
	}
	return cfg
}

// Registry is the process-wide room index. Its mutex guards only the
// code→controller map; it is touched on create/join/teardown, never
// per-message.
type Registry struct {
	cfg     RegistryConfig
	quizzes QuizContentStore
	results ResultStore
	auth    AuthVerifier
	codes   CodeReservations
	limiter *RateLimiter
	metrics *Metrics

	mu    sync.RWMutex
	rooms map[string]*Controller
}

// NewRegistry wires the engine together. limiter and every collaborator
// must be non-nil except results, which may be nil in demos (finish then
// skips persistence).
func NewRegistry(cfg RegistryConfig, quizzes QuizContentStore, results ResultStore, auth AuthVerifier, codes CodeReservations, limiter *RateLimiter, metrics *Metrics) *Registry {
	return &Registry{
		cfg:     cfg.withDefaults(),
		quizzes: quizzes,
		results: results,
		auth:    auth,
		codes:   codes,
		limiter: limiter,
		metrics: metrics,
		rooms:   make(map[string]*Controller),
	}
}

func (r *Registry) Metrics() *Metrics     { return r.metrics }
func (r *Registry) Limiter() *RateLimiter { return r.limiter }
func (r *Registry) MaxPlayers() int       { return r.cfg.MaxPlayers }

// CreateRoom authenticates the host, fetches quiz content, and registers a
// fresh controller in WAITING. Collaborator failures abort creation
// entirely; no partially-initialized room is ever registered.
func (r *Registry) CreateRoom(ctx context.Context, quizID, hostToken, addr string) (*Controller, string, error) {
	if !r.limiter.Admit(addr) {
		r.metrics.Errors.Add(1)
		return nil, "", domain.ErrRateLimited
	}
	hostID, err := r.auth.Verify(ctx, hostToken)
	if err != nil {
		r.metrics.Errors.Add(1)
		return nil, "", domain.ErrAuthInvalid
	}
	if r.activeRooms() >= r.cfg.MaxRooms {
		r.metrics.Errors.Add(1)
		return nil, "", domain.ErrCapacityExceeded
	}
	quiz, err := r.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		r.metrics.Errors.Add(1)
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rooms) >= r.cfg.MaxRooms {
		r.metrics.Errors.Add(1)
		return nil, "", domain.ErrCapacityExceeded
	}
	code, err := r.allocateCodeLocked(ctx)
	if err != nil {
		return nil, "", err
	}
	ctrl := NewController(code, quiz, hostID, ControllerConfig{
		MaxPlayers:    r.cfg.MaxPlayers,
		BonusFactor:   r.cfg.BonusFactor,
		DrainTimeout:  r.cfg.DrainTimeout,
		ResultRetries: r.cfg.ResultRetries,
		ResultBackoff: r.cfg.ResultBackoff,
	}, ControllerDeps{
		Results:  r.results,
		Metrics:  r.metrics,
		OnRemove: func(code string) { r.RemoveRoom(code) },
	})
	r.rooms[code] = ctrl
	log.Printf("room %s created for quiz %s by host %s", code, quizID, hostID)
	return ctrl, hostID, nil
}

// JoinRoom admits a connection into an existing room and returns the
// room's controller plus the new handle. Admission errors reject the
// attempt before any controller involvement.
func (r *Registry) JoinRoom(ctx context.Context, code string, req AttachRequest) (*Controller, *Handle, error) {
	if !r.limiter.Admit(req.Addr) {
		r.metrics.Errors.Add(1)
		return nil, nil, domain.ErrRateLimited
	}
	ctrl, ok := r.Lookup(code)
	if !ok {
		r.metrics.Errors.Add(1)
		return nil, nil, domain.ErrRoomNotFound
	}
	if !r.limiter.Acquire(req.Addr) {
		r.metrics.Errors.Add(1)
		return nil, nil, domain.ErrRateLimited
	}
	h, _, err := ctrl.Attach(req)
	if err != nil {
		r.limiter.Release(req.Addr)
		r.metrics.Errors.Add(1)
		return nil, nil, err
	}
	return ctrl, h, nil
}

// VerifyHost validates a host bearer credential outside of room creation,
// e.g. for a host reconnecting to an existing room.
func (r *Registry) VerifyHost(ctx context.Context, token string) (string, error) {
	hostID, err := r.auth.Verify(ctx, token)
	if err != nil {
		r.metrics.Errors.Add(1)
		return "", domain.ErrAuthInvalid
	}
	return hostID, nil
}

// ReleaseHandle returns a handle's connection slot to its source address.
// Called by the transport when a socket fully closes.
func (r *Registry) ReleaseHandle(h *Handle) {
	r.limiter.Release(h.Addr())
}

// Lookup resolves an active room code.
func (r *Registry) Lookup(code string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.rooms[code]
	return ctrl, ok
}

// RemoveRoom tears a room down and reserves its code for the grace period.
// Idempotent: removing an unknown code is a no-op.
func (r *Registry) RemoveRoom(code string) {
	r.mu.Lock()
	ctrl, ok := r.rooms[code]
	if ok {
		delete(r.rooms, code)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	ctrl.Shutdown()
	if r.codes != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.codes.Reserve(ctx, code, r.cfg.GraceTTL); err != nil {
			log.Printf("room %s: code reservation failed: %v", code, err)
		}
		cancel()
	}
	log.Printf("room %s removed", code)
}

// Controllers returns a snapshot of active controllers; sweeps iterate the
// snapshot so they never hold the registry lock across room calls.
func (r *Registry) Controllers() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Controller, 0, len(r.rooms))
	for _, ctrl := range r.rooms {
		out = append(out, ctrl)
	}
	return out
}

// RoomInfo answers the room validation query.
func (r *Registry) RoomInfo(code string) domain.RoomInfo {
	ctrl, ok := r.Lookup(code)
	if !ok {
		return domain.RoomInfo{RoomCode: code}
	}
	snap := ctrl.Snapshot()
	return domain.RoomInfo{
		RoomCode:    code,
		Joinable:    snap.Status != domain.StatusFinished && snap.PlayerCount < r.cfg.MaxPlayers,
		PlayerCount: snap.PlayerCount,
	}
}

// RoomStats answers the room stats query.
func (r *Registry) RoomStats(code string) (domain.RoomStats, bool) {
	ctrl, ok := r.Lookup(code)
	if !ok {
		return domain.RoomStats{}, false
	}
	snap := ctrl.Snapshot()
	return domain.RoomStats{
		RoomCode:     code,
		Status:       snap.Status,
		PlayerCount:  snap.PlayerCount,
		CurrentIndex: snap.CurrentIndex,
		Age:          time.Since(snap.CreatedAt),
	}, true
}

func (r *Registry) activeRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ActiveRooms reports the current room count for the health query.
func (r *Registry) ActiveRooms() int { return r.activeRooms() }

// LiveConnections reports the total number of attached handles.
func (r *Registry) LiveConnections() int {
	total := 0
	for _, ctrl := range r.Controllers() {
		total += ctrl.Snapshot().HandleCount
	}
	return total
}

// Shutdown drains every room; used at process exit.
func (r *Registry) Shutdown() {
	for _, ctrl := range r.Controllers() {
		r.RemoveRoom(ctrl.Code())
	}
}

// allocateCodeLocked generates a fresh code absent from the active map and
// not under a post-teardown reservation.
func (r *Registry) allocateCodeLocked(ctx context.Context) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := randomCode(roomCodeLength)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := r.rooms[code]; taken {
			continue
		}
		if r.codes != nil && r.codes.Reserved(ctx, code) {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: could not allocate a unique room code", domain.ErrCapacityExceeded)
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}
