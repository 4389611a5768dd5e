package controlapi

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/rs/zerolog"
)

// MessageKind identifies what the scheduler's tick loop should do with
// a drained Message.
type MessageKind string

const (
	KindRunJob    MessageKind = "run_job"
	KindJobUpdate MessageKind = "job_update"
)

// Message is one request handed from an HTTP handler to the scheduler's
// tick loop. Payload carries the run-job body, re-encoded after a
// missing name has been filled in; it is nil for job_update messages.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// Server is the mutual-TLS Control API. Request handlers only ever
// enqueue onto messages and return; all job-record and schedule
// mutation happens on the scheduler's own goroutine when it drains
// Messages().
type Server struct {
	addr      string
	tlsConfig *tls.Config
	store     storage.Store
	logger    zerolog.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	messages   chan Message
}

// New builds a Server bound to addr, serving behind tlsConfig (built
// from security.Material.ServerTLSConfig) and answering /metrics and
// /cron-specs from store.
func New(addr string, tlsConfig *tls.Config, store storage.Store, logger zerolog.Logger) *Server {
	s := &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		store:     store,
		logger:    logger.With().Str("component", "controlapi").Logger(),
		messages:  make(chan Message, 64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/is-running", s.handleIsRunning)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/run-job", s.handleRunJob)
	mux.HandleFunc("/job-update", s.handleJobUpdate)
	mux.HandleFunc("/cron-specs", s.handleCronSpecs)
	s.mux = mux

	return s
}

// Messages returns the channel the scheduler's tick loop drains.
// Multiple handler goroutines may enqueue onto it concurrently; it is
// buffered so a burst of requests never blocks on the once-a-second
// drain cadence for long.
func (s *Server) Messages() <-chan Message {
	return s.messages
}

// Start begins serving in the background. It does not block; callers
// observe failures through the logger, matching the "runs as an
// isolated subprocess" note's intent that the parent is never brought
// down by a Control API fault.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		TLSConfig:    s.tlsConfig,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("controlapi: listen on %s: %w", s.addr, err)
	}

	tlsListener := tls.NewListener(listener, s.tlsConfig)

	go func() {
		if err := s.httpServer.Serve(tlsListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("control api server error")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("control api listening")
	return nil
}

// Stop gracefully shuts down the HTTP server, standing in for
// terminating the subprocess the spec describes.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
