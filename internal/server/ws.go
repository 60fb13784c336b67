package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWatch streams progress reports as JSON text frames until the job
// finishes, then closes the socket normally.
func (a *API) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	reports, cancel, err := a.jobs.Watch(r.Context(), id)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		a.logger.Warn("ws.upgrade.failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	// the read side only exists to notice the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	sent := 0
	for {
		select {
		case rep, ok := <-reports:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				a.logger.Debug("ws.closed", "job_id", id, "sent", sent)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(rep); err != nil {
				a.logger.Warn("ws.write.failed", "job_id", id, "error", err)
				return
			}
			sent++
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			a.logger.Debug("ws.peer_gone", "job_id", id, "sent", sent)
			return
		}
	}
}
