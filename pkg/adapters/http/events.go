package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/flowline/internal/logging"
	"github.com/aretw0/flowline/pkg/domain"
)

// allRuns is the subscription key for the unfiltered stream.
const allRuns = "*"

// StreamManager fans engine events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- []byte]struct{} // RunID or allRuns -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- []byte]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for the events of runID, or of every run
// when runID is empty. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(runID string) (<-chan []byte, func()) {
	if runID == "" {
		runID = allRuns
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan []byte, 32)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan<- []byte]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
			close(ch)
		})
	}
}

// Broadcast delivers msg to the subscribers of runID and of the global stream.
func (sm *StreamManager) Broadcast(runID string, msg []byte) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, key := range []string{runID, allRuns} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				sm.logger.Warn("SSE: client buffer full, dropping event", "run_id", runID)
			}
		}
	}
}

// Hooks publishes run and node events to the subscribers.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	publish := func(runID string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			sm.logger.Error("SSE: failed to encode event", "err", err)
			return
		}
		sm.Broadcast(runID, data)
	}
	return domain.LifecycleHooks{
		OnRunStart:  func(_ context.Context, e *domain.RunEvent) { publish(e.RunID, e) },
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) { publish(e.RunID, e) },
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { publish(e.RunID, e) },
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) { publish(e.RunID, e) },
	}
}

// SubscribeEvents handles GET /events (SSE), optionally filtered by ?run_id=.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	runID := r.URL.Query().Get("run_id")
	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE: client subscribed", "run_id", runID)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
