// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the job queue over HTTP: submit a URL for conversion,
// list job status and show the active profile.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/mediafit/internal/acquire"
	"github.com/ManuGH/mediafit/internal/batch"
	"github.com/ManuGH/mediafit/internal/config"
	"github.com/ManuGH/mediafit/internal/log"
	"github.com/ManuGH/mediafit/internal/media"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Runner converts a batch of inputs.
type Runner interface {
	Run(ctx context.Context, inputs []string, profile media.OutputProfile) (batch.Summary, error)
}

// Profiles supplies the profile new jobs run with.
type Profiles interface {
	Get() config.Profile
}

// Options tune a Server.
type Options struct {
	// MaxActive caps jobs that are pending or processing. Further submissions
	// get 503.
	MaxActive int
	// Retention is how many finished jobs stay listed.
	Retention int
	RateLimit RateLimitConfig
}

// DefaultOptions returns the limits used by the serve command.
func DefaultOptions() Options {
	return Options{
		MaxActive: 64,
		Retention: DefaultRetention,
		RateLimit: RateLimitConfig{RequestLimit: 120, WindowSize: time.Minute},
	}
}

// Server runs queued jobs in the background. Jobs outlive the request that
// submitted them and end with the context passed to NewServer.
type Server struct {
	ctx      context.Context
	runner   Runner
	profiles Profiles
	store    *Store
	opts     Options
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewServer creates a job server. Jobs are cancelled when ctx ends.
func NewServer(ctx context.Context, runner Runner, profiles Profiles, opts Options) *Server {
	if opts.MaxActive <= 0 {
		opts.MaxActive = DefaultOptions().MaxActive
	}
	if opts.RateLimit.RequestLimit <= 0 || opts.RateLimit.WindowSize <= 0 {
		opts.RateLimit = DefaultOptions().RateLimit
	}
	return &Server{
		ctx:      ctx,
		runner:   runner,
		profiles: profiles,
		store:    NewStore(opts.Retention),
		opts:     opts,
		logger:   log.WithComponent("api"),
	}
}

// Store exposes the job store.
func (s *Server) Store() *Store { return s.store }

// Wait blocks until every started job has returned.
func (s *Server) Wait() { s.wg.Wait() }

// Handler serves the job routes relative to its mount point.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(traced("api"))
	r.Use(rateLimit(s.opts.RateLimit))
	r.Post("/queue", s.handleQueue)
	r.Get("/status", s.handleStatus)
	r.Get("/status/{id}", s.handleJob)
	r.Get("/profiles", s.handleProfiles)
	return r
}

// QueueRequest is the body of POST /queue.
type QueueRequest struct {
	URL string `json:"url"`
}

// QueueResponse acknowledges a submitted job.
type QueueResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// StatusResponse lists jobs, oldest first.
type StatusResponse struct {
	Jobs []Job `json:"jobs"`
}

// ProfileInfo summarises the active profile.
type ProfileInfo struct {
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Container    string  `json:"container"`
	VideoCodec   string  `json:"video_codec"`
	MaxWidth     int     `json:"max_width"`
	MaxHeight    int     `json:"max_height"`
	MaxFileSize  float64 `json:"max_file_size_gb"`
	OnSizeExceed string  `json:"on_size_exceed"`
}

// ProfilesResponse lists the profiles a job can run with.
type ProfilesResponse struct {
	Profiles []ProfileInfo `json:"profiles"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

const maxBody = 64 << 10

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	var req QueueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if !acquire.IsURL(req.URL) {
		writeError(w, r, http.StatusBadRequest, "invalid_url", fmt.Sprintf("%q is not an http(s) URL", req.URL))
		return
	}
	if s.ctx.Err() != nil {
		writeError(w, r, http.StatusServiceUnavailable, "shutting_down", "server is stopping")
		return
	}

	p := s.profiles.Get()
	job, ok := s.store.Create(req.URL, p.Profile.Name, s.opts.MaxActive)
	if !ok {
		writeError(w, r, http.StatusServiceUnavailable, "queue_full", fmt.Sprintf("%d jobs already queued", s.opts.MaxActive))
		return
	}
	s.wg.Add(1)
	go s.run(job.ID, req.URL, p.OutputProfile())

	s.logger.Info().
		Str(log.FieldJobID, job.ID).
		Str(log.FieldURL, req.URL).
		Str(log.FieldProfile, p.Profile.Name).
		Msg("job queued")
	writeJSON(w, r, http.StatusAccepted, QueueResponse{ID: job.ID, Status: job.Status})
}

// run converts one job and records its outcome.
func (s *Server) run(id, url string, profile media.OutputProfile) {
	defer s.wg.Done()
	ctx := log.ContextWithJobID(s.ctx, id)
	logger := log.WithContext(ctx, s.logger)

	s.store.Update(id, func(j *Job) {
		j.Status = StatusProcessing
		j.Stage = "running"
	})

	sum, err := s.runner.Run(ctx, []string{url}, profile)
	if err == nil && len(sum.Items) == 1 {
		err = sum.Items[0].Err
	}
	if err == nil && len(sum.Items) != 1 {
		err = errors.New("conversion reported no result")
	}

	job, _ := s.store.Update(id, func(j *Job) {
		if err != nil {
			j.Status = StatusError
			j.Stage = "failed"
			j.Error = err.Error()
			return
		}
		it := sum.Items[0]
		j.Status = StatusComplete
		j.Outputs = append([]string(nil), it.Result.Outputs...)
		j.Stage = string(it.Result.Action)
		if it.Done {
			j.Stage = "skipped"
		}
	})

	if err != nil {
		logger.Error().Err(err).Str(log.FieldURL, url).Msg("job failed")
		return
	}
	logger.Info().
		Str(log.FieldURL, url).
		Str(log.FieldStage, job.Stage).
		Strs("outputs", job.Outputs).
		Msg("job completed")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, StatusResponse{Jobs: s.store.List()})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "no such job")
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	p := s.profiles.Get()
	writeJSON(w, r, http.StatusOK, ProfilesResponse{Profiles: []ProfileInfo{{
		Name:         p.Profile.Name,
		Description:  p.Profile.Description,
		Container:    p.Output.Container,
		VideoCodec:   p.Video.Codec,
		MaxWidth:     p.Video.MaxWidth,
		MaxHeight:    p.Video.MaxHeight,
		MaxFileSize:  p.Output.MaxFileSizeGB,
		OnSizeExceed: p.Output.OnSizeExceed,
	}}})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "api.encode_error").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, r, status, errorResponse{Error: code, Detail: detail})
}
