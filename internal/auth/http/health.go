package http

import (
	"context"
	"net/http"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/pkg/authsdk"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// probe renders a backend ping as "ok" or "error: ...".
func probe(ctx context.Context, p pinger) (string, bool) {
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error(), false
	}
	return "ok", true
}

type health struct {
	started time.Time
	version string
}

func (h health) write(w http.ResponseWriter, status string, checks *authsdk.HealthChecks) {
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(h.started).String(),
		Version: h.version,
		Checks:  checks,
	})
}

// LivezHandler always answers 200 while the process is running.
func LivezHandler(startTime time.Time, buildVersion string) http.HandlerFunc {
	h := health{started: startTime, version: buildVersion}
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, "ok", nil)
	}
}

// ReadyzHandler reports 503 when the database, or a remote one-time-code
// store, cannot be reached. The in-memory code store has nothing to ping.
func ReadyzHandler(startTime time.Time, buildVersion string, st store.Store, codes otp.Store) http.HandlerFunc {
	h := health{started: startTime, version: buildVersion}
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		checks := &authsdk.HealthChecks{}

		var ok bool
		if checks.Database, ok = probe(r.Context(), st); !ok {
			status = "degraded"
		}
		if p, isPinger := codes.(pinger); isPinger {
			if checks.Codes, ok = probe(r.Context(), p); !ok {
				status = "degraded"
			}
		}

		h.write(w, status, checks)
	}
}
