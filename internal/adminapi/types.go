// Copyright 2025 James Ross
// Package adminapi exposes the narrow admin HTTP surface named in §6 of the
// dedup backend spec: paged job listing, single-job lookup, and job
// deletion. It is a read-mostly window onto the Job Record Store (C1); it
// never enqueues work or mutates files or clusters.
package adminapi

import "time"

// Config holds the admin API's own settings, separate from the shared
// application Config so the HTTP surface can be tuned (timeouts, audit
// rotation) without touching worker or engine settings.
type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequireAuth     bool          `mapstructure:"require_auth"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AuditEnabled    bool          `mapstructure:"audit_enabled"`
	AuditLogPath    string        `mapstructure:"audit_log_path"`
	AuditRotateMB   int           `mapstructure:"audit_rotate_mb"`
	AuditMaxBackups int           `mapstructure:"audit_max_backups"`
}

// DefaultConfig returns the settings used when no admin-api.yaml is present.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8090",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequireAuth:     false,
		AuditEnabled:    true,
		AuditLogPath:    "log/admin-audit.jsonl",
		AuditRotateMB:   50,
		AuditMaxBackups: 5,
	}
}

// JobResponse is the wire shape of a durable job record returned by the
// admin surface. error_message is omitted rather than null when unset, to
// keep the common case terse.
type JobResponse struct {
	JobID        string     `json:"job_id"`
	FileID       int64      `json:"file_id"`
	FileName     string     `json:"file_name"`
	ObjectKey    string     `json:"object_key"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the paged envelope for GET /jobs.
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ErrorResponse is the JSON body returned alongside any non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
