package api

import (
	"context"
	"net/http"
	"time"
)

// Check is one dependency probed by the readiness endpoint. A failing
// optional check degrades the report without failing it.
type Check struct {
	Name     string
	Optional bool
	Probe    func(ctx context.Context) error
}

type SystemHandler struct {
	Checks []Check
}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "estate"})
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version, "buildTime": buildTime})
	}
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ReadyHandler probes every check. It answers 503 when a required check fails.
func (h *SystemHandler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out := readiness{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	status := http.StatusOK
	for _, c := range h.Checks {
		if err := c.Probe(ctx); err != nil {
			out.Checks[c.Name] = err.Error()
			if c.Optional {
				if out.Status == "ok" {
					out.Status = "degraded"
				}
				continue
			}
			out.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, out)
}
