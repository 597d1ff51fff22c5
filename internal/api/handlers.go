// Package api provides the bridge's HTTP control API.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terminusxx/docker-wyze-bridge/internal/history"
	"github.com/terminusxx/docker-wyze-bridge/internal/stream"
)

// Server wires the HTTP handlers to the stream supervisor.
type Server struct {
	manager *stream.Manager
	store   *history.Store
	hub     *Hub
}

// NewServer creates the API server. The history store may be nil.
func NewServer(manager *stream.Manager, store *history.Store, hub *Hub) *Server {
	return &Server{manager: manager, store: store, hub: hub}
}

// Router builds the chi router for the API.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/cams", s.listCams)
		r.Get("/cams/{uri}", s.getCam)
		r.Post("/cams/{uri}/{cmd}", s.sendCmd)
		r.Post("/snapshot", s.takeSnapshots)
		r.Get("/events", s.listEvents)
		r.Get("/health", s.health)
	})
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	return r
}

func (s *Server) listCams(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"total":   s.manager.Total(),
		"enabled": s.manager.Active(),
		"cameras": s.manager.AllInfo(),
	})
}

func (s *Server) getCam(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	cam := s.manager.Get(uri)
	if cam == nil {
		NotFound(w, "camera not found: "+uri)
		return
	}
	OK(w, cam.GetInfo())
}

// sendCmd dispatches a camera command. The dispatcher always returns an
// envelope, so the HTTP status only distinguishes not-found from the
// rest; command-level failures ride inside the envelope.
func (s *Server) sendCmd(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	cmd := chi.URLParam(r, "cmd")

	var body struct {
		Payload any `json:"payload"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	resp := s.manager.Send(uri, cmd, body.Payload)
	if resp.Response == "Camera not found" {
		NotFound(w, "camera not found: "+uri)
		return
	}
	OK(w, resp)
}

func (s *Server) takeSnapshots(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cameras []string `json:"cameras"`
		Force   bool     `json:"force"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var uris []string
	if len(body.Cameras) > 0 {
		uris = body.Cameras
	}
	s.manager.TakeSnapshots(uris, body.Force)
	OK(w, map[string]any{"requested": true})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		OK(w, []history.Event{})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	events, err := s.store.List(r.Context(), r.URL.Query().Get("uri"), limit)
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	OK(w, events)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"total":         s.manager.Total(),
		"enabled":       s.manager.Active(),
		"last_snapshot": s.manager.LastSnapshot().Unix(),
	})
}
