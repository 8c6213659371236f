// README: In-process observer registry; transports adapt on top of Subscribe.
package request

import (
	"time"

	"rideflow/internal/types"
)

// Update is delivered to subscribers on every status or field change of a
// request, including radius growth (From == To == searching).
type Update struct {
	Request RideRequest
	From    Status
	To      Status
	At      time.Time
}

// Subscribe registers fn for one request's updates and returns the
// unsubscribe function. Callbacks run synchronously on the publishing
// goroutine and must not block; transport adapters buffer on their side.
func (e *Engine) Subscribe(id types.ID, fn func(Update)) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.subSeq++
	key := e.subSeq
	if e.subs[id] == nil {
		e.subs[id] = make(map[int]func(Update))
	}
	e.subs[id][key] = fn

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs[id], key)
		if len(e.subs[id]) == 0 {
			delete(e.subs, id)
		}
	}
}

func (e *Engine) publish(r *RideRequest, from, to Status) {
	e.subMu.Lock()
	fns := make([]func(Update), 0, len(e.subs[r.ID]))
	for _, fn := range e.subs[r.ID] {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	u := Update{Request: *r, From: from, To: to, At: r.UpdatedAt}
	for _, fn := range fns {
		fn(u)
	}
}
