// Copyright 2025 James Ross
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/filevault/dedup-backend/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// Server wraps the admin HTTP surface's listener lifecycle and middleware
// chain. Routing itself lives in Handler.
type Server struct {
	cfg      *Config
	handler  *Handler
	log      *zap.Logger
	auditLog *AuditLogger
	server   *http.Server
}

func NewServer(cfg *Config, s store.Store, log *zap.Logger) *Server {
	var auditLog *AuditLogger
	if cfg.AuditEnabled {
		auditLog = NewAuditLogger(cfg.AuditLogPath, cfg.AuditRotateMB, cfg.AuditMaxBackups)
	}
	return &Server{
		cfg:      cfg,
		handler:  NewHandler(s, log),
		log:      log,
		auditLog: auditLog,
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	s.handler.RegisterRoutes(r)

	var h http.Handler = r
	h = s.recoveryMiddleware(h)
	h = s.authMiddleware(h)
	h = s.auditMiddleware(h)
	h = s.requestIDMiddleware(h)
	return h
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("starting admin API server", zap.String("addr", s.cfg.ListenAddr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.auditLog != nil {
		_ = s.auditLog.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auditLog == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		entry := AuditEntry{
			Timestamp:  start,
			RequestID:  requestIDFrom(r.Context()),
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
			Status:     rec.status,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err := s.auditLog.Log(entry); err != nil {
			s.log.Warn("audit log write failed", zap.Error(err))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered in admin API", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}
