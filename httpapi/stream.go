package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/shivam-kaushik/co-investigator/checkpoint"
)

// SSE event types for the checkpoints stream.
const (
	SSEEventCheckpointRaised   = "checkpoint_raised"
	SSEEventCheckpointResolved = "checkpoint_resolved"
	SSEEventHeartbeat          = "heartbeat"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// handleStream handles GET /checkpoints/stream and the per-session
// GET /sessions/{id}/checkpoints/watch for SSE events. On the global
// route an optional session_id query parameter filters by session.
//
// On initial connection, existing checkpoints are replayed as
// checkpoint_raised events; a sync_complete event signals the end of
// the replay.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.watcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "checkpoint streaming requires the durable store")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher.Flush()

	watcher, err := s.watcher.Bucket().WatchAll(ctx)
	if err != nil {
		s.logger.Error("Failed to watch checkpoints bucket", "error", err)
		s.sendSSEEvent(w, flusher, "error", map[string]string{"message": "failed to watch checkpoints"})
		return
	}
	defer watcher.Stop()

	if err := s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected"}); err != nil {
		s.logger.Debug("Client disconnected during connect", "error", err)
		return
	}

	sessionFilter := r.PathValue("id")
	if sessionFilter == "" {
		sessionFilter = r.URL.Query().Get("session_id")
	}

	// Track prior states to tell raises from resolutions
	seen := make(map[string]checkpoint.Status)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var eventID uint64
	updates := watcher.Updates()
	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			eventID++
			if err := s.sendSSEEventWithID(w, flusher, eventID, SSEEventHeartbeat, map[string]any{}); err != nil {
				s.logger.Debug("Client disconnected during heartbeat", "error", err)
				return
			}

		case entry, ok := <-updates:
			if !ok {
				return
			}

			// nil entry signals end of initial values
			if entry == nil {
				if err := s.sendSSEEvent(w, flusher, "sync_complete", map[string]string{"status": "ready"}); err != nil {
					s.logger.Debug("Client disconnected during sync", "error", err)
					return
				}
				continue
			}

			if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
				delete(seen, entry.Key())
				continue
			}

			var cp checkpoint.Checkpoint
			if err := json.Unmarshal(entry.Value(), &cp); err != nil {
				s.logger.Warn("Failed to parse checkpoint", "key", entry.Key(), "error", err)
				continue
			}

			if sessionFilter != "" && cp.SessionID != sessionFilter {
				continue
			}

			eventType := SSEEventCheckpointRaised
			if prev, known := seen[entry.Key()]; known && prev != cp.Status && cp.Status == checkpoint.StatusResolved {
				eventType = SSEEventCheckpointResolved
			}
			seen[entry.Key()] = cp.Status

			eventID++
			if err := s.sendSSEEventWithID(w, flusher, eventID, eventType, &cp); err != nil {
				s.logger.Debug("Client disconnected during event", "error", err)
				return
			}
		}
	}
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	return s.sendSSEEventWithID(w, flusher, 0, eventType, data)
}

// sendSSEEventWithID writes one SSE frame. A write error means the
// client went away.
func (s *Server) sendSSEEventWithID(w http.ResponseWriter, flusher http.Flusher, id uint64, eventType string, data any) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("Failed to marshal SSE data", "error", err)
		return nil
	}

	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, dataBytes); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
