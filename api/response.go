package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/models"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Error      *errorBody  `json:"error,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type errorBody struct {
	Kind    apperr.Kind       `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondPage[T any](w http.ResponseWriter, p *models.Page[T]) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       items,
		Pagination: &pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages()},
	})
}

// respondError maps err onto the error taxonomy. Internal details are logged,
// never sent.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := &errorBody{Kind: kind, Message: "internal error"}

	var ae *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &ae) {
		body.Message = ae.Message
		body.Fields = ae.Fields
		if body.Message == "" {
			body.Message = string(kind)
		}
	}

	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("kind", string(kind)), slog.Any("err", err))
	}
	writeJSON(w, status, envelope{Success: false, Error: body})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			return apperr.Validation("request body too large", nil)
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is empty", nil)
		default:
			return apperr.Validation("invalid JSON body", nil)
		}
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, apperr.Field(name, "must be an integer")
	}
	return &n, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Field(name, "must be an integer")
	}
	return &n, nil
}

// pageParams reads page and limit; zero values let the services apply defaults.
func pageParams(r *http.Request) (page, limit int, err error) {
	p, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	l, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	if p != nil {
		page = *p
	}
	if l != nil {
		limit = *l
	}
	return page, limit, nil
}

// ifMatch returns the version carried by an If-Match header, if any.
// Both bare and quoted (ETag style) values are accepted.
func ifMatch(r *http.Request) (*int64, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" {
		return nil, nil
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Field("If-Match", "must be a version number")
	}
	return &n, nil
}
