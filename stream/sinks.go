package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// SSESink writes Server-Sent Events.
type SSESink struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSESink sends the event stream headers and flushes them immediately.
func NewSSESink(w http.ResponseWriter) *SSESink {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s := &SSESink{w: w, rc: http.NewResponseController(w)}
	_ = s.rc.Flush()
	return s
}

func (s *SSESink) Send(_ context.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("[stream SSESink] encode %s: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Frame is one WebSocket message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WebSocketSink writes JSON frames to a WebSocket connection.
type WebSocketSink struct {
	conn *websocket.Conn
}

// AcceptWebSocket upgrades the request. The returned context is cancelled once the
// client closes the connection.
func AcceptWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, originPatterns []string) (*WebSocketSink, context.Context, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
	if err != nil {
		return nil, nil, err
	}
	return &WebSocketSink{conn: conn}, conn.CloseRead(ctx), nil
}

func (s *WebSocketSink) Send(ctx context.Context, event string, data any) error {
	return wsjson.Write(ctx, s.conn, Frame{Event: event, Data: data})
}

// Close ends the connection normally.
func (s *WebSocketSink) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
