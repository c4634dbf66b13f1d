package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The queue collaborator connects from inside the deployment, so
		// origin checks stay permissive here.
		return true
	},
}

// WebSocketProcessRequest asks for one document to be processed.
type WebSocketProcessRequest struct {
	DocumentID string `json:"document_id"`
	Force      bool   `json:"force,omitempty"`
}

// WebSocketConnWriter is the subset of *websocket.Conn the send helpers
// need, so tests can substitute a recorder.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketProcessResponse reports processing progress and the final result.
type WebSocketProcessResponse struct {
	Type       string      `json:"type"`
	Status     string      `json:"status"` // "processing", "completed", "error"
	Progress   float64     `json:"progress,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorType  string      `json:"error_type,omitempty"`
	DocumentID string      `json:"document_id,omitempty"`
}

// processWebSocketHandler streams processing progress over a WebSocket.
// A document_id query parameter starts one run immediately; further runs
// can be requested as JSON messages on the same connection.
func (s *Server) processWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket client connected", "remote_addr", r.RemoteAddr)

	if id := r.URL.Query().Get("document_id"); id != "" {
		req := WebSocketProcessRequest{
			DocumentID: id,
			Force:      r.URL.Query().Get("force") == "true",
		}
		s.processOverWebSocket(r.Context(), conn, req)
	}

	s.readLoop(r.Context(), conn)
}

// readLoop serves requests from the connection until the client goes away
// or the read deadline lapses without a pong.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read failed", "error", err)
			}
			return
		}

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// pingLoop keeps the connection alive until done is closed or a ping cannot
// be written. WriteControl is safe to call concurrently with WriteMessage.
func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// handleWebSocketMessage parses and runs one processing request.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, data []byte) {
	var req WebSocketProcessRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err), "")
		return
	}
	s.processOverWebSocket(ctx, conn, req)
}

// processOverWebSocket runs the processor for one request and streams the
// start, completion or error messages back to the client.
func (s *Server) processOverWebSocket(ctx context.Context, conn *websocket.Conn, req WebSocketProcessRequest) {
	if req.DocumentID == "" {
		s.sendWebSocketError(conn, "invalid_request", "No document_id provided", "")
		return
	}

	s.sendWebSocketResponse(conn, WebSocketProcessResponse{
		Type:       "process_response",
		Status:     "processing",
		Progress:   0.0,
		DocumentID: req.DocumentID,
	})

	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	res, err := s.processor.ProcessDocument(ctx, req.DocumentID, req.Force)
	duration := time.Since(start)

	if err != nil {
		processRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, errorTypeFor(err), err.Error(), req.DocumentID)
		return
	}

	processRequestsTotal.WithLabelValues("websocket", "success").Inc()
	processDuration.WithLabelValues("websocket").Observe(duration.Seconds())
	fieldsDetected.WithLabelValues("websocket").Observe(float64(res.FieldsFound))

	s.sendWebSocketResponse(conn, WebSocketProcessResponse{
		Type:       "process_response",
		Status:     "completed",
		Progress:   1.0,
		Result:     res,
		DocumentID: req.DocumentID,
	})
}

// errorTypeFor names the error class sent to WebSocket clients.
func errorTypeFor(err error) string {
	switch statusForError(err) {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "already_claimed"
	default:
		return "processing_error"
	}
}

// sendWebSocketResponse marshals and writes one message to the client.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketProcessResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to encode WebSocket message", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to write WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError reports a failed request to the client.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message, documentID string) {
	s.sendWebSocketResponse(conn, WebSocketProcessResponse{
		Type:       "error",
		Status:     "error",
		Error:      message,
		ErrorType:  errorType,
		DocumentID: documentID,
	})
}
