package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/assistant"
	"github.com/garnizeh/estate/internal/listing"
	"github.com/garnizeh/estate/pkg/models"
)

type PropertiesHandler struct {
	listings *listing.Service
	search   *assistant.Engine
}

// NewPropertiesHandler builds the listing endpoints. search may be nil, in
// which case semantic search reports the model as unavailable.
func NewPropertiesHandler(listings *listing.Service, search *assistant.Engine) *PropertiesHandler {
	return &PropertiesHandler{listings: listings, search: search}
}

// propertyFilter reads the search query parameters shared by the list endpoints.
func propertyFilter(r *http.Request) (models.PropertyFilter, models.PropertyStatus, error) {
	q := r.URL.Query()
	f := models.PropertyFilter{
		Search:       strings.TrimSpace(firstNonEmpty(q.Get("search"), q.Get("q"))),
		City:         strings.TrimSpace(q.Get("city")),
		PropertyType: models.PropertyType(q.Get("propertyType")),
		ListingType:  models.ListingType(q.Get("listingType")),
		Sort:         q.Get("sort"),
	}
	var err error
	if f.MinPrice, err = queryInt64(r, "minPrice"); err != nil {
		return f, "", err
	}
	if f.MaxPrice, err = queryInt64(r, "maxPrice"); err != nil {
		return f, "", err
	}
	if f.Bedrooms, err = queryInt(r, "bedrooms"); err != nil {
		return f, "", err
	}
	if f.Page, f.Limit, err = pageParams(r); err != nil {
		return f, "", err
	}
	return f, models.PropertyStatus(q.Get("status")), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *PropertiesHandler) List(w http.ResponseWriter, r *http.Request) {
	f, status, err := propertyFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.listings.List(r.Context(), CallerFrom(r.Context()), f, status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPage(w, page)
}

func (h *PropertiesHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	f, status, err := propertyFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.listings.ListMine(r.Context(), CallerFrom(r.Context()), f, status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPage(w, page)
}

func (h *PropertiesHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		respondError(w, r, apperr.UpstreamUnavailable("semantic search is not configured", nil))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	matches, err := h.search.Search(r.Context(), r.URL.Query().Get("q"), n)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, matches)
}

func (h *PropertiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.listings.View(r.Context(), CallerFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *PropertiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.PropertyInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.listings.Create(r.Context(), CallerFrom(r.Context()), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (h *PropertiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.PropertyPatch
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
	p, err := h.listings.Update(r.Context(), CallerFrom(r.Context()), mux.Vars(r)["id"], patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

type statusRequest struct {
	Status          models.PropertyStatus `json:"status"`
	RejectionReason string                `json:"rejectionReason,omitempty"`
	Reason          string                `json:"reason,omitempty"`
	ExpectedVersion *int64                `json:"expectedVersion,omitempty"`
}

func (h *PropertiesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	v, err := ifMatch(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if v != nil {
		req.ExpectedVersion = v
	}
	if req.Status == "" {
		respondError(w, r, apperr.Field("status", "is required"))
		return
	}
	reason := firstNonEmpty(req.RejectionReason, req.Reason)
	p, err := h.listings.UpdateStatus(r.Context(), CallerFrom(r.Context()), mux.Vars(r)["id"], req.Status, reason, req.ExpectedVersion)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, p)
}

type deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (h *PropertiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.listings.Delete(r.Context(), CallerFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, deleted{ID: id, Deleted: true})
}
