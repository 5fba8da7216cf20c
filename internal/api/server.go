package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"netwatch/internal/api/handlers"
	"netwatch/internal/api/storage"
	"netwatch/internal/pipeline"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var allowedOrigins = []string{
	"http://localhost:5000",
	"http://localhost:3000",
	"http://127.0.0.1:5000",
	"http://127.0.0.1:3000",
}

// Server exposes stored alerts and engine state over HTTP
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
	port   string
}

// NewRouter builds the routed, CORS wrapped handler used by the server
func NewRouter(store *storage.Storage, processor *pipeline.Processor, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	handlers.NewHandlers(store, processor, logger).Routes(router)
	return router
}

func NewServer(port string, store *storage.Storage, processor *pipeline.Processor, logger *logrus.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(store, processor, logger),
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
		},
		logger: logger,
		port:   port,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	s.logger.Infof("API server starting on port %s", s.port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if origin != "" {
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					allowOrigin = origin
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if allowOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
