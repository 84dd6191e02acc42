package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// streamVRAM pushes the latest snapshot as server-sent events until the peer
// disconnects, the server shuts down or the stream lifetime elapses. Each
// tick serializes the freshest snapshot; a slow consumer blocks the write
// and the ticker drops the missed ticks, so the stream skips ahead instead
// of buffering stale frames.
func streamVRAM(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		sseStreamsActive.Inc()
		defer sseStreamsActive.Dec()

		deadline := time.NewTimer(streamMaxLifetime)
		defer deadline.Stop()
		ticker := time.NewTicker(streamInterval)
		defer ticker.Stop()

		emit := func() bool {
			b, err := json.Marshal(svc.LatestSnapshot())
			if err != nil {
				return false
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}
}
