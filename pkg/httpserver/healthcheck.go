package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifier/pkg/logger"
)

// Check is a named readiness dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler answers 200 while the process can serve requests.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, probeReport{Status: "alive"})
	}
}

// ReadinessHandler runs every check concurrently, each bounded by timeout,
// and answers 503 if any of them fails.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu     sync.Mutex
			report = probeReport{Status: "ready", Checks: make(map[string]string, len(checks))}
			status = http.StatusOK
			g      errgroup.Group
		)
		for _, c := range checks {
			g.Go(func() error {
				err := c.Probe(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.WarnContext(r.Context(), "readiness check failed",
						slog.String("check", c.Name), logger.Error(err))
					report.Checks[c.Name] = err.Error()
					report.Status = "not_ready"
					status = http.StatusServiceUnavailable
					return nil
				}
				report.Checks[c.Name] = "ok"
				return nil
			})
		}
		_ = g.Wait()

		writeReport(w, status, report)
	}
}

func writeReport(w http.ResponseWriter, status int, report probeReport) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
