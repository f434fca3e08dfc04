package api

import (
	"net/http"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/assistant"
	"github.com/garnizeh/estate/internal/jobs"
	"github.com/garnizeh/estate/internal/listing"
)

type AdminHandler struct {
	listings *listing.Service
	engine   *assistant.Engine
	jobs     *jobs.Repository
}

func NewAdminHandler(listings *listing.Service, engine *assistant.Engine, jobRepo *jobs.Repository) *AdminHandler {
	return &AdminHandler{listings: listings, engine: engine, jobs: jobRepo}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.listings.Stats(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

// Insights narrates the current analytics snapshot through the language model.
func (h *AdminHandler) Insights(w http.ResponseWriter, r *http.Request) {
	stats, err := h.listings.Stats(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if h.engine == nil {
		respondError(w, r, apperr.UpstreamUnavailable("assistant is not configured", nil))
		return
	}
	ins, err := h.engine.Insights(r.Context(), stats)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, ins)
}

type jobsReport struct {
	Counts      map[string]int    `json:"counts"`
	DeadLetters []jobs.DeadLetter `json:"deadLetters"`
}

// Jobs reports the background queue: jobs per status and recent dead letters.
func (h *AdminHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if err := access.Require(CallerFrom(r.Context()), access.Moderate); err != nil {
		respondError(w, r, err)
		return
	}
	if h.jobs == nil {
		respond(w, http.StatusOK, jobsReport{Counts: map[string]int{}, DeadLetters: []jobs.DeadLetter{}})
		return
	}
	counts, err := h.jobs.Counts(r.Context())
	if err != nil {
		respondError(w, r, apperr.Internal("count jobs", err))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	n := 20
	if limit != nil {
		n = *limit
	}
	dead, err := h.jobs.ListDeadLetters(r.Context(), n)
	if err != nil {
		respondError(w, r, apperr.Internal("list dead letters", err))
		return
	}
	if dead == nil {
		dead = []jobs.DeadLetter{}
	}
	respond(w, http.StatusOK, jobsReport{Counts: counts, DeadLetters: dead})
}
