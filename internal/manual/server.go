// File: internal/manual/server.go
package manual

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hurdle/internal/challenge"
)

// Server exposes pending tickets over HTTP so operators can work from
// another machine.
type Server struct {
	gateway    *Gateway
	logger     *zap.Logger
	addr       string
	httpServer *http.Server
}

type response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewServer creates a server for g listening on addr.
func NewServer(addr string, g *Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{gateway: g, logger: logger.Named("manual_server"), addr: addr}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/screenshot", s.handleScreenshot)
		r.Post("/{id}/resolve", s.decide(challenge.SignalResolved))
		r.Post("/{id}/abandon", s.decide(challenge.SignalAbandoned))
	})
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Operator API listening", zap.String("address", s.addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, response{Status: "success", Data: s.gateway.Pending()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := s.gateway.Get(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, ErrUnknownTicket.Error())
		return
	}
	s.respond(w, http.StatusOK, response{Status: "success", Data: t})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	png, ok := s.gateway.Screenshot(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "no screenshot for ticket")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) decide(sig challenge.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := s.gateway.Resolve(id, sig)
		switch {
		case errors.Is(err, ErrUnknownTicket):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrAlreadyDecided):
			s.respondError(w, http.StatusConflict, err.Error())
		case err != nil:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		default:
			s.logger.Info("Decision received over HTTP", zap.String("ticket_id", id), zap.String("signal", string(sig)))
			s.respond(w, http.StatusOK, response{Status: "success", Data: map[string]string{"id": id, "signal": string(sig)}})
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, response{Status: "error", Error: msg})
}

func (s *Server) respond(w http.ResponseWriter, code int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
