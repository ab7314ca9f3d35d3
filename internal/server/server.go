// Package server binds the session registry to HTTP and WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxRequestBody = 64 << 10
	maxMessageSize = 4 << 10
)

// Server serves the session API.
type Server struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

func New(registry *session.Registry) *Server {
	s := &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("POST /api/sessions", s.createSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	s.mux.HandleFunc("GET /ws/{id}", s.serveSocket)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

type createResponse struct {
	SessionID string         `json:"session_id"`
	Status    session.Status `json:"status"`
}

type sessionResponse struct {
	SessionID   string         `json:"session_id"`
	Status      session.Status `json:"status"`
	ContentHash string         `json:"content_hash,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type errorResponse struct {
	Code  apperr.Code `json:"code"`
	Error string      `json:"error"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return
	}
	sess, err := s.registry.Create(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createResponse{SessionID: sess.ID(), Status: session.StatusCreating})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status, failure := sess.Status()
	resp := sessionResponse{SessionID: sess.ID(), Status: status, ContentHash: sess.ContentHash()}
	if failure != nil {
		resp.Error = session.FailureMessage(failure)
	}
	writeJSON(w, http.StatusOK, resp)
}

// client serializes writes to one socket.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(u models.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed for %s: %v", id, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn}
	sub, status, failure := sess.Attach()
	defer sub.Close()

	switch status {
	case session.StatusCreating, session.StatusReady:
		err = c.send(session.StatusUpdate(status))
	case session.StatusFailed:
		err = c.send(session.ErrorUpdate(session.FailureMessage(failure), nil))
	}
	if err != nil {
		return
	}

	go func() {
		for u := range sub.C {
			if err := c.send(u); err != nil {
				log.Printf("server: write to observer of %s failed: %v", id, err)
				conn.Close()
				return
			}
		}
		// The session dropped this observer.
		c.mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a, err := game.ParseAction(payload)
		if err == nil {
			_, err = sess.Do(r.Context(), a)
		}
		if err != nil {
			if err := c.send(session.ErrorUpdate(userMessage(err), sess.Snapshot())); err != nil {
				return
			}
		}
	}
}

// userMessage is the text shown to a player for a rejected action.
func userMessage(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return "Something went wrong."
	}
	if e.Code == apperr.CodeState {
		return "The game is not ready yet."
	}
	return e.Message
}

// HTTPStatus maps an error code to an HTTP status.
func HTTPStatus(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeGeneration:
		return http.StatusBadGateway
	case apperr.CodeStorage:
		return http.StatusServiceUnavailable
	case apperr.CodeState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("server: %v", err)
	}
	writeJSON(w, status, errorResponse{Code: apperr.CodeOf(err), Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
