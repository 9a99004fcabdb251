// Copyright 2025 James Ross
package adminapi

import (
	"encoding/json"
	"net/http"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEntry is one line of the admin audit trail: every request against the
// admin surface, regardless of outcome.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remote_addr"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
}

// AuditLogger appends JSON-lines audit entries to a size- and count-rotated
// file. Rotation itself is delegated to lumberjack rather than hand-rolled,
// matching how the rest of the stack handles rolling files.
type AuditLogger struct {
	out *lumberjack.Logger
}

func NewAuditLogger(path string, maxSizeMB, maxBackups int) *AuditLogger {
	return &AuditLogger{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

func (a *AuditLogger) Log(entry AuditEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = a.out.Write(b)
	return err
}

func (a *AuditLogger) Close() error {
	return a.out.Close()
}

// statusRecorder captures the status code written to w so the audit
// middleware can log it after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
