// Copyright 2025 James Ross
package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/filevault/dedup-backend/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Handler implements the admin HTTP surface of §6: GET /jobs, GET
// /jobs/{job_id}, DELETE /jobs/{job_id}. It only reads and deletes durable
// job rows; it never touches the queue or the file/cluster tables.
type Handler struct {
	store store.Store
	log   *zap.Logger
}

func NewHandler(s store.Store, log *zap.Logger) *Handler {
	return &Handler{store: s, log: log}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{job_id}", h.getJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{job_id}", h.deleteJob).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// listJobs serves GET /jobs?status=&limit=&offset=. limit is capped at 100;
// a missing, unparsable or non-positive limit becomes 50. A negative or
// unparsable offset is treated as 0, per spec §6
// and §8's boundary-behaviour invariant.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			offset = n
		}
	}
	if offset < 0 {
		offset = 0
	}

	query := store.ListJobsQuery{Limit: limit, Offset: offset}
	if raw := q.Get("status"); raw != "" {
		s := store.JobStatus(raw)
		query.Status = &s
	}

	jobs, err := h.store.ListJobs(r.Context(), query)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs)), Limit: limit, Offset: offset}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	err := h.store.DeleteJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func toJobResponse(j store.Job) JobResponse {
	resp := JobResponse{
		JobID:       j.JobID,
		FileID:      j.FileID,
		FileName:    j.FileName,
		ObjectKey:   j.ObjectKey,
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.ErrorMessage != nil {
		resp.ErrorMessage = *j.ErrorMessage
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
