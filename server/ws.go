package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/progress"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients never send application messages on this endpoint
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Job streams carry no credentials and job ids are unguessable
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusMessage is the wire format of a job stream message.
type statusMessage struct {
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Progress       *int       `json:"progress,omitempty"`
	CompletedTools int        `json:"completed_tools,omitempty"`
	TotalTools     int        `json:"total_tools,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func messageFromJob(j *job.Job) statusMessage {
	msg := statusMessage{
		Type:     "status",
		Status:   string(j.Status),
		Progress: j.Progress,
		Error:    j.ErrorMessage,
	}
	if j.Status.Terminal() {
		completedAt := j.UpdatedAt
		msg.CompletedAt = &completedAt
	}
	return msg
}

func messageFromEvent(e progress.Event) statusMessage {
	msg := statusMessage{
		Type:           "status",
		Status:         e.Status,
		Progress:       e.Progress,
		CompletedTools: e.CompletedTools,
		TotalTools:     e.TotalTools,
		Error:          e.Error,
	}
	if e.Terminal() {
		completedAt := e.Timestamp
		msg.CompletedAt = &completedAt
	}
	return msg
}

// handleJobWebSocket streams one job's state changes.
// The client receives a snapshot on connect, then live events; the server
// closes the stream when the job reaches a terminal state.
//
//	GET /v1/ws/jobs/{job_id}
func (s *Server) handleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("job_id")

	// Subscribe before the snapshot read so a transition between the two
	// is seen as an event rather than lost
	events := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(id, events)

	j, err := s.jobs.Get(id)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("job_id", id)
	log.Debugw("WebSocket client connected")

	// Read pump: discard client frames, keep the pong deadline fresh
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := messageFromJob(j)
	if err := writeMessage(conn, snapshot); err != nil {
		return
	}
	if j.Status.Terminal() {
		closeStream(conn)
		return
	}

	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-clientGone:
			log.Debugw("WebSocket client disconnected")
			return
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeMessage(conn, messageFromEvent(event)); err != nil {
				return
			}
			if event.Terminal() {
				closeStream(conn)
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg statusMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func closeStream(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
