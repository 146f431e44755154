package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetvrp/internal/auth"
	"fleetvrp/internal/events"
	"fleetvrp/internal/planner"
	"fleetvrp/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	keepAlive  = 20 * time.Second
	writeWait  = 10 * time.Second
	readWindow = 60 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribe registers for run events and re-reads the run, so an event
// published between the caller's first read and the subscription is not
// lost: a run that finished meanwhile is reported from the store instead.
func (s *Server) subscribe(r *http.Request, run store.Run) (chan events.Event, store.Run) {
	ch := s.Broker.Subscribe(run.ID)
	if fresh, err := s.Store.GetRun(r.Context(), run.Tenant, run.ID); err == nil {
		run = fresh
	}
	return ch, run
}

// streamWS handles /v1/solves/{id}/events. The server sends connection_ack,
// one "next" per lifecycle event and "complete" after the terminal one.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, p auth.Principal, run store.Run) {
	if !p.CanWatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for solve events", r.URL.Path)
		return
	}
	ch, run := s.subscribe(r, run)
	defer s.Broker.Unsubscribe(run.ID, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var mu sync.Mutex
	write := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}
	next := func(evt events.Event) error {
		payload, _ := json.Marshal(evt)
		return write(wsMessage{Type: "next", ID: run.ID, Payload: payload})
	}

	// Read loop: answers pings and notices the client going away.
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readWindow)); return nil })
	go func() {
		defer close(closed)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readWindow))
			if msg.Type == "ping" {
				_ = write(wsMessage{Type: "pong"})
			}
		}
	}()

	if err := write(wsMessage{Type: "connection_ack", ID: run.ID}); err != nil {
		return
	}
	if run.Terminal() {
		if next(planner.TerminalEvent(run)) == nil {
			_ = write(wsMessage{Type: "complete", ID: run.ID})
		}
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := next(evt); err != nil {
				return
			}
			if evt.Terminal() {
				_ = write(wsMessage{Type: "complete", ID: run.ID})
				return
			}
		case <-ticker.C:
			if err := write(wsMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

// streamSSE handles /v1/solves/{id}/stream as server-sent events.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, p auth.Principal, run store.Run) {
	if !p.CanWatch() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "not authorized for solve events", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, run := s.subscribe(r, run)
	defer s.Broker.Unsubscribe(run.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt events.Event) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", run.ID, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}

	heartbeat()
	if run.Terminal() {
		send(planner.TerminalEvent(run))
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Terminal() {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}
