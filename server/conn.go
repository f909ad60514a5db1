package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
)

// Request is a tool call sent by the client.
type Request struct {
	ID    string          `json:"id"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Response answers one Request. Exactly one of Result and Error is set.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed call.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// conn is one websocket client.
type conn struct {
	id   string
	ws   *websocket.Conn
	srv  *Server
	wmu  sync.Mutex
	done chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("[SERVER] Upgrade failed: %v", err)
		return
	}

	c := &conn{
		id:   uuid.New().String(),
		ws:   ws,
		srv:  s,
		done: make(chan struct{}),
	}
	s.track(ws)
	log.Printf("[SERVER] Client connected: %s (%s)", c.id, r.RemoteAddr)

	go c.pingLoop()
	c.readLoop(r.Context())

	close(c.done)
	s.untrack(ws)
	_ = ws.Close()
	log.Printf("[SERVER] Client disconnected: %s", c.id)
}

func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] Read error from %s: %v", c.id, err)
			}
			return
		}

		resp := c.handle(ctx, data)
		if err := c.write(resp); err != nil {
			log.Printf("[SERVER] Write error to %s: %v", c.id, err)
			return
		}
	}
}

func (c *conn) handle(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return &Response{Error: &ErrorBody{Code: core.CodeInvalidInput, Message: "malformed message: " + err.Error()}}
	}
	if req.Tool == "" {
		return &Response{ID: req.ID, Error: &ErrorBody{Code: core.CodeInvalidInput, Message: "tool is required"}}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.srv.cfg.CallTimeout)
	defer cancel()

	result, _ := c.srv.engine.Execute(callCtx, &engine.Call{
		RequestID: req.ID,
		ClientID:  c.id,
		Tool:      req.Tool,
		Input:     req.Input,
	})

	if !result.Success {
		return &Response{ID: req.ID, Error: &ErrorBody{Code: result.ErrorCode, Message: result.Error}}
	}
	return &Response{ID: req.ID, Result: result.Data}
}

func (c *conn) write(resp *Response) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(resp)
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
