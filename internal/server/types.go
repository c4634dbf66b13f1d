package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldlens-tech/fieldlens/internal/store"
	"github.com/fieldlens-tech/fieldlens/internal/worker"
)

// processorRunner defines the processing entry point the server needs.
type processorRunner interface {
	ProcessDocument(ctx context.Context, documentID string, force bool) (*worker.ProcessResult, error)
}

// regionLister reads persisted field regions for polling clients.
type regionLister interface {
	ListRegions(ctx context.Context, documentID uuid.UUID) ([]store.FieldRegion, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	processor  processorRunner
	regions    regionLister
	corsOrigin string
	timeoutSec int
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	TimeoutSec int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:       "0.0.0.0",
		Port:       8080,
		CORSOrigin: "*",
		TimeoutSec: 300,
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	DocumentID string `json:"document_id"`
	Force      bool   `json:"force,omitempty"`
}

// ErrorResponse is the JSON error body shared by all endpoints.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// FieldsResponse lists the persisted regions of one document.
type FieldsResponse struct {
	DocumentID string              `json:"document_id"`
	Fields     []store.FieldRegion `json:"fields"`
	Count      int                 `json:"count"`
}

// NewServer creates a new processing server instance.
func NewServer(config Config, processor processorRunner, regions regionLister) *Server {
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	return &Server{
		processor:  processor,
		regions:    regions,
		corsOrigin: config.CORSOrigin,
		timeoutSec: config.TimeoutSec,
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/process", s.corsMiddleware(s.processHandler))
	mux.HandleFunc("/documents/", s.corsMiddleware(s.fieldsHandler))
	mux.HandleFunc("/ws/process", s.processWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}
