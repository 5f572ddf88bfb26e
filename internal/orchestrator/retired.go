package orchestrator

import (
	"time"

	"ratchet/internal/position"
)

const (
	// pendingFillWindow is how long a trailing order the venue no longer
	// knows blocks new trailing orders while its fill is expected.
	pendingFillWindow = 30 * time.Second
	// retiredTTL bounds how long a retired id still accepts a late fill.
	retiredTTL = time.Hour
)

// retiredOrder is an order the venue answered "not found" for on cancel or
// move. It most likely filled and its fill is still in flight.
type retiredOrder struct {
	side      position.Side
	emergency bool
	at        time.Time
}

func (e *entry) retire(id string, side position.Side, emergency bool, now time.Time) {
	if id == position.NoOrder {
		return
	}
	if e.retired == nil {
		e.retired = make(map[string]retiredOrder)
	}
	for old, r := range e.retired {
		if now.Sub(r.at) > retiredTTL {
			delete(e.retired, old)
		}
	}
	e.retired[id] = retiredOrder{side: side, emergency: emergency, at: now}
}

// takeRetired removes and returns the retired order for id.
func (e *entry) takeRetired(id string) (retiredOrder, bool) {
	r, ok := e.retired[id]
	if ok {
		delete(e.retired, id)
	}
	return r, ok
}

// awaitingFill reports whether a retired trailing order may still fill.
func (e *entry) awaitingFill(now time.Time) bool {
	for _, r := range e.retired {
		if !r.emergency && now.Sub(r.at) < pendingFillWindow {
			return true
		}
	}
	return false
}
