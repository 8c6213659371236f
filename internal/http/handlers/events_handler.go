// README: Server-sent events stream of a request's status updates.
package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/request"
	"rideflow/internal/types"
)

type EventsHandler struct {
	engine *request.Engine
}

func NewEventsHandler(engine *request.Engine) *EventsHandler {
	return &EventsHandler{engine: engine}
}

type updateView struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	At   time.Time   `json:"at"`
	Ride requestView `json:"request"`
}

// Stream pushes every status update of one request as an SSE event,
// starting with a snapshot of the current state. The stream closes when
// the request reaches a terminal state or the client disconnects.
// Subscription callbacks must not block, so updates go through a
// buffered channel; a slow consumer loses intermediate updates but the
// terminal one is always retried.
func (h *EventsHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}

	// Subscribe before reading the snapshot so a transition landing in
	// between is buffered rather than lost; a terminal update arriving in
	// that gap shows up either in the snapshot or on the terminal channel.
	updates := make(chan request.Update, 16)
	terminal := make(chan request.Update, 1)
	unsub := h.engine.Subscribe(types.ID(id), func(u request.Update) {
		if u.To.Terminal() {
			select {
			case terminal <- u:
			default:
			}
			return
		}
		select {
		case updates <- u:
		default:
		}
	})
	defer unsub()

	cur, err := h.engine.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("snapshot", viewOf(cur))
	c.Writer.Flush()
	if cur.Status.Terminal() {
		return
	}

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case u := <-terminal:
			c.SSEvent("status", updateView{From: string(u.From), To: string(u.To), At: u.At, Ride: viewOf(&u.Request)})
			return false
		case u := <-updates:
			c.SSEvent("status", updateView{From: string(u.From), To: string(u.To), At: u.At, Ride: viewOf(&u.Request)})
			return true
		}
	})
}
