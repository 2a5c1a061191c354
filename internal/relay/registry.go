package relay

import (
	"fmt"
	"sync"

	"github.com/lockrelay/lockd/internal/frame"
)

// LockMapping is one lock declared under a device in the fleet config.
type LockMapping struct {
	// ID is the fleet-wide unique lock identifier used by the API.
	ID string
	// Board is the 0-based board index this lock lives on.
	Board int
	// Lock is the 1-based lock number on that board.
	Lock int
}

// DeviceDescriptor is the static, config-declared shape of one device:
// how many boards it exposes and which locks are wired to which board.
type DeviceDescriptor struct {
	BoardCount int
	Locks      []LockMapping
}

// Config is the fleet configuration keyed by device address.
type Config map[string]DeviceDescriptor

// ValidateConfig checks structural invariants that must hold before any
// connection is attempted: board indices and lock numbers in range, and
// lock ids unique across the entire fleet (not just within one device).
// A violation is ErrConfigInvalid and is fatal at startup.
func ValidateConfig(cfg Config) error {
	seen := make(map[string]string, len(cfg))
	for addr, desc := range cfg {
		if desc.BoardCount < 1 {
			return fmt.Errorf("%w: %s: board_count must be >= 1", ErrConfigInvalid, addr)
		}
		for _, lock := range desc.Locks {
			if lock.ID == "" {
				return fmt.Errorf("%w: %s: lock with empty id", ErrConfigInvalid, addr)
			}
			if lock.Board < 0 || lock.Board >= desc.BoardCount {
				return fmt.Errorf("%w: %s: lock %s has out-of-range board %d", ErrConfigInvalid, addr, lock.ID, lock.Board)
			}
			if lock.Lock < 1 || lock.Lock > frame.LocksPerBoard {
				return fmt.Errorf("%w: %s: lock %s has out-of-range lock number %d", ErrConfigInvalid, addr, lock.ID, lock.Lock)
			}
			if prior, dup := seen[lock.ID]; dup {
				return fmt.Errorf("%w: lock id %s declared on both %s and %s", ErrConfigInvalid, lock.ID, prior, addr)
			}
			seen[lock.ID] = addr
		}
	}
	return nil
}

type lockRef struct {
	addr  string
	board int
	lock  int
}

// Registry maps device addresses to live sessions and lock ids to the
// (session, board, lock) triple that serves them. It is built once at
// startup (and incrementally as the background initializer brings
// devices online) and is safe for concurrent reads and writes, though
// in steady state it is read-only.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lookup   map[string]lockRef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		lookup:   make(map[string]lockRef),
	}
}

// Install registers a connected session for addr and indexes every lock
// the descriptor declares for it. It is only called for devices that
// connected successfully; unreachable devices are retried later and
// their locks stay unresolvable until then.
func (r *Registry) Install(addr string, desc DeviceDescriptor, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[addr] = session
	for _, lock := range desc.Locks {
		r.lookup[lock.ID] = lockRef{addr: addr, board: lock.Board, lock: lock.Lock}
	}
}

// Has reports whether addr already has an installed session.
func (r *Registry) Has(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[addr]
	return ok
}

// Resolve looks up the session and board/lock coordinates for a lock id.
func (r *Registry) Resolve(lockID string) (*Session, int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.lookup[lockID]
	if !ok {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrNotFound, lockID)
	}
	session, ok := r.sessions[ref.addr]
	if !ok {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrNotFound, lockID)
	}
	return session, ref.board, ref.lock, nil
}

// Sessions returns a snapshot of all currently installed sessions.
func (r *Registry) Sessions() map[string]*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Session, len(r.sessions))
	for addr, s := range r.sessions {
		out[addr] = s
	}
	return out
}

// Disconnect closes every installed session. Used on graceful shutdown.
func (r *Registry) Disconnect() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Disconnect()
	}
}
