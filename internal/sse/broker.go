// Package sse implements a Server-Sent Events broker for build updates.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/starford/vbsb/internal/models"
)

// Event types published by the broker.
const (
	EventBuildSucceeded = "build.succeeded"
	EventBuildFailed    = "build.failed"
	EventBuildSkipped   = "build.skipped"
	EventUnitsChanged   = "units.changed"
	EventStatusUpdated  = "status.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// BuildData is the payload of build.* events.
type BuildData struct {
	Units      int      `json:"units"`
	Failures   int      `json:"failures"`
	Failed     []string `json:"failed,omitempty"`
	Bundled    bool     `json:"bundled"`
	Skipped    string   `json:"skipped,omitempty"`
	Output     string   `json:"output,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	WriteError string   `json:"write_error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// UnitsData is the payload of units.changed events.
type UnitsData struct {
	Created []string `json:"created,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + status throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	statusMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given status throttle interval.
func NewBroker(statusThrottle time.Duration) *Broker {
	if statusThrottle <= 0 {
		statusThrottle = 2 * time.Second
	}

	b := &Broker{
		statusMin:     statusThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastStatus time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.changeCh:
			broadcast(event)

			now := time.Now()
			if now.Sub(lastStatus) >= b.statusMin {
				lastStatus = now
				broadcast(Event{Type: EventStatusUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(b.publishCh, event)
}

// CycleFinished publishes the outcome of a build cycle followed by a
// throttled status.updated event.
func (b *Broker) CycleFinished(_ context.Context, res *models.CycleResult) {
	b.send(b.changeCh, Event{Type: cycleEventType(res), Data: newBuildData(res)})
}

// BatchApplied publishes the units touched by a change batch followed by a
// throttled status.updated event.
func (b *Broker) BatchApplied(_ context.Context, batch models.Batch) {
	var d UnitsData
	for _, ev := range batch {
		name := filepath.ToSlash(ev.Unit.Path)
		switch ev.Kind {
		case models.Created:
			d.Created = append(d.Created, name)
		case models.Deleted:
			d.Deleted = append(d.Deleted, name)
		case models.Renamed:
			d.Changed = append(d.Changed, name)
		}
	}
	b.send(b.changeCh, Event{Type: EventUnitsChanged, Data: d})
}

func (b *Broker) send(ch chan Event, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- event:
	case <-b.stopped:
	}
}

func cycleEventType(res *models.CycleResult) string {
	switch {
	case res.Failures > 0 || res.WriteErr != "":
		return EventBuildFailed
	case res.Bundled:
		return EventBuildSucceeded
	default:
		return EventBuildSkipped
	}
}

func newBuildData(res *models.CycleResult) BuildData {
	d := BuildData{
		Units:      res.Units,
		Failures:   res.Failures,
		Bundled:    res.Bundled,
		Skipped:    res.Skipped,
		Output:     res.Output,
		Checksum:   res.Checksum,
		WriteError: res.WriteErr,
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, f := range res.Failed() {
		d.Failed = append(d.Failed, f.RelativePath)
	}
	return d
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
