package relay

import (
	"context"
	"sync"
	"time"
)

// Offline is the status sentinel reported for a lock whose device could
// not be reached or did not answer.
const Offline = "offline"

// FleetStatus maps lock id to true (closed), false (open), or Offline.
type FleetStatus map[string]any

// RelayStatus polls every installed session in parallel and assembles a
// status for every lock the fleet config declares, regardless of
// whether its device answered. Walking the config's declared locks
// (rather than each device's response) keeps the shape of the result
// stable even when part of the fleet is down. It returns the wall-clock
// duration of the poll alongside the result for logging.
func RelayStatus(ctx context.Context, cfg Config, registry *Registry) (FleetStatus, time.Duration) {
	start := time.Now()

	sessions := registry.Sessions()
	perAddr := make(map[string]map[int]map[int]bool, len(sessions))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for addr, session := range sessions {
		desc, ok := cfg[addr]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(addr string, session *Session, boardCount int) {
			defer wg.Done()
			statuses := session.GetStatus(ctx, boardCount)
			mu.Lock()
			perAddr[addr] = statuses
			mu.Unlock()
		}(addr, session, desc.BoardCount)
	}
	wg.Wait()

	result := make(FleetStatus, len(cfg))
	for addr, desc := range cfg {
		boardStatuses, deviceOnline := perAddr[addr]
		for _, lock := range desc.Locks {
			if !deviceOnline {
				result[lock.ID] = Offline
				continue
			}
			lockStatuses, ok := boardStatuses[lock.Board]
			if !ok {
				result[lock.ID] = Offline
				continue
			}
			closed, ok := lockStatuses[lock.Lock]
			if !ok {
				result[lock.ID] = Offline
				continue
			}
			result[lock.ID] = closed
		}
	}

	return result, time.Since(start)
}

// Pulse resolves a lock id to its owning session and enqueues an unlock
// command. It returns as soon as the command is enqueued; it does not
// wait for the drainer to actually send it.
func Pulse(registry *Registry, lockID string) error {
	session, board, lock, err := registry.Resolve(lockID)
	if err != nil {
		return err
	}
	session.EnqueueUnlock(byte(board), lock)
	return nil
}
