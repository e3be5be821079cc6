package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
)

// Server emulates the managed notes backend for local development and
// end-to-end tests: the upload and chat endpoints plus REST CRUD for notes
// and patients.
type Server struct {
	router    *chi.Mux
	repo      interfaces.Repository
	generator Generator
	authToken string
}

type Options func(*Server)

// WithGenerator overrides the note/chat text generator
func WithGenerator(gen Generator) Options {
	return func(s *Server) {
		s.generator = gen
	}
}

// WithAuthToken requires the given bearer token on every request
func WithAuthToken(token string) Options {
	return func(s *Server) {
		s.authToken = token
	}
}

func New(repo interfaces.Repository, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:    r,
		repo:      repo,
		generator: TemplateGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)
	if s.authToken != "" {
		r.Use(bearerAuth(s.authToken))
	}

	r.Post("/upload-json", s.handleUpload)
	r.Post("/chat-with-helixa", s.handleChat)

	r.Route("/api", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", s.handleListPatients)
			r.Post("/", s.handleCreatePatient)
			r.Get("/{patientID}", s.handleGetPatient)
			r.Put("/{patientID}", s.handleUpdatePatient)
			r.Delete("/{patientID}", s.handleDeletePatient)
			r.Get("/{patientID}/notes", s.handleListNotes)
		})
		r.Route("/notes", func(r chi.Router) {
			r.Post("/", s.handleCreateNote)
			r.Get("/{noteID}", s.handleGetNote)
			r.Put("/{noteID}", s.handleUpdateNote)
			r.Delete("/{noteID}", s.handleDeleteNote)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// respondJSON writes a success envelope. Every payload carries success:true;
// clients check the flag explicitly even on HTTP 200.
func respondJSON(w http.ResponseWriter, status int, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["success"] = true

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a failure envelope with the given status
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
