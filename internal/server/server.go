// Package server exposes the pipeline over HTTP.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antoinelm/listful/internal/pipeline"
)

// Server routes HTTP requests into the pipeline service.
type Server struct {
	svc   *pipeline.Service
	users UserResolver
}

func New(svc *pipeline.Service, users UserResolver) *Server {
	return &Server{svc: svc, users: users}
}

// Handler builds the full route table. API routes require a bearer token;
// health and metrics do not.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		return withAuth(s.users, h)
	}

	mux.Handle("POST /api/ai/scan", authed(s.handleScan))
	mux.Handle("POST /api/ai/describe", authed(s.handleDescribe))
	mux.Handle("POST /api/ai/listing", authed(s.handleListing))
	mux.Handle("GET /api/history", authed(s.handleHistory))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withObservability(mux)
}
