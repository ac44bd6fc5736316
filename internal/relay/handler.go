package relay

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 25 * time.Second

// SSEHandler streams broker events as server-sent events. Clients may
// filter feeds with ?feeds=state,settings. Each client first receives the
// latest event of every feed it follows.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var feedFilter map[string]bool
		if q := r.URL.Query().Get("feeds"); q != "" {
			feedFilter = make(map[string]bool)
			for _, f := range strings.Split(q, ",") {
				if f = strings.TrimSpace(f); f != "" {
					feedFilter[f] = true
				}
			}
		}
		wanted := func(evt Event) bool { return feedFilter == nil || feedFilter[evt.Feed] }

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, snapshot, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for _, evt := range snapshot {
			if wanted(evt) {
				writeEvent(w, evt)
			}
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !wanted(evt) {
					continue
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Feed, evt.Payload)
}
