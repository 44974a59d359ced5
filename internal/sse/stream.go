// Package sse streams broadcast subscriptions to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/starford/mynotes/internal/broadcast"
)

// Event is a single SSE frame.
type Event struct {
	Type string
	Data any
}

// Encode renders an event as an SSE frame with a JSON data line.
func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

// Stream writes every value of sub as an SSE event until the client goes away
// or the subscription is closed. initial, if non-nil, is sent first. Stream
// takes ownership of sub and unsubscribes it on return.
func Stream[T any](w http.ResponseWriter, r *http.Request, sub *broadcast.Subscription[T], initial *T, toEvent func(T) Event) {
	defer sub.Unsubscribe()

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

	write := func(v T) bool {
		msg, err := Encode(toEvent(v))
		if err != nil {
			return true // skip values that cannot be encoded
		}
		if _, err := w.Write(msg); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if initial != nil && !write(*initial) {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C:
			if !ok {
				return
			}
			if !write(v) {
				return
			}
		}
	}
}
