package httphandlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dev default
	},
}

// StreamEvents upgrades to a websocket and forwards journal events as
// JSON, one message per event. ?last=N replays up to N retained events
// before the live stream starts.
func (h *HTTPHandler) StreamEvents(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Warnf("events upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	last := 0
	if s := ctx.Query("last"); s != "" {
		last, err = strconv.Atoi(s)
		if err != nil || last < 0 {
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "last must be a non-negative integer")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}

	sub := h.journal.Subscribe()
	defer sub.Unsubscribe()

	// subscribed before the replay, an event landing in between shows
	// up twice rather than never, consumers dedupe on seq
	for _, e := range h.journal.Last(last) {
		if err := conn.WriteJSON(e); err != nil {
			return
		}
	}

	// the client never sends data, reading still must be drained to
	// notice the close handshake
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Request.Context().Done():
			return
		case v, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
}
