package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// eventsPath is the server-sent-events resource the stream attaches to.
const eventsPath = "/events"

// Stream is the push-based Source: one long-lived server-sent-events
// connection per transaction. Events arrive as named SSE messages whose
// data lines carry the JSON payload.
type Stream struct {
	emitterCore

	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewStream creates a stream source for baseURL. client may be nil, in
// which case http.DefaultClient is used; note the client must not have
// a global timeout, or it would sever the long-lived connection.
func NewStream(baseURL string, client *http.Client, logger *slog.Logger) *Stream {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		emitterCore: newEmitterCore(),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		http:        client,
		logger:      logger,
	}
}

// Connect opens the event stream. Connecting an already-open stream is
// a no-op; onReady fires once the server has accepted the subscription.
func (s *Stream) Connect(ctx context.Context, token string, onReady func()) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		if onReady != nil {
			onReady()
		}
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.baseURL+eventsPath, nil)
	if err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("event stream refused: HTTP %d", resp.StatusCode)
	}

	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	go s.read(resp)

	if onReady != nil {
		onReady()
	}
	return nil
}

// Close severs the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.started = false
	return nil
}

// read consumes SSE frames until the connection dies. A frame is an
// optional "event:" line followed by one or more "data:" lines and a
// blank terminator.
func (s *Stream) read(resp *http.Response) {
	defer resp.Body.Close()

	var eventName string
	var data strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			s.dispatch(eventName, data.String())
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// Comment/keep-alive frame.
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("event stream closed unexpectedly", "error", err)
		s.emit(EventError, ErrorPayload{Message: err.Error()})
	}
}

func (s *Stream) dispatch(eventName, data string) {
	if eventName == "" || data == "" {
		return
	}
	if !json.Valid([]byte(data)) {
		s.logger.Warn("dropping non-JSON stream frame", "event", eventName)
		return
	}
	s.emitRaw(eventName, json.RawMessage(data))
}
