package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/estate/internal/inquiry"
	"github.com/garnizeh/estate/pkg/models"
)

type InquiriesHandler struct {
	inquiries *inquiry.Service
}

func NewInquiriesHandler(inquiries *inquiry.Service) *InquiriesHandler {
	return &InquiriesHandler{inquiries: inquiries}
}

func inquiryFilter(r *http.Request) (models.InquiryFilter, error) {
	page, limit, err := pageParams(r)
	if err != nil {
		return models.InquiryFilter{}, err
	}
	return models.InquiryFilter{Status: models.InquiryStatus(r.URL.Query().Get("status")), Page: page, Limit: limit}, nil
}

func (h *InquiriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.InquiryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	q, err := h.inquiries.Create(r.Context(), CallerFrom(r.Context()), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, q)
}

func (h *InquiriesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	f, err := inquiryFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.inquiries.ListMine(r.Context(), CallerFrom(r.Context()), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPage(w, page)
}

func (h *InquiriesHandler) ListReceived(w http.ResponseWriter, r *http.Request) {
	f, err := inquiryFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.inquiries.ListReceived(r.Context(), CallerFrom(r.Context()), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPage(w, page)
}

func (h *InquiriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.inquiries.Get(r.Context(), CallerFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, q)
}

func (h *InquiriesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.InquiryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	v, err := ifMatch(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if v != nil {
		patch.ExpectedVersion = v
	}
	q, err := h.inquiries.Update(r.Context(), CallerFrom(r.Context()), mux.Vars(r)["id"], patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, q)
}

func (h *InquiriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.inquiries.Delete(r.Context(), CallerFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, deleted{ID: id, Deleted: true})
}
