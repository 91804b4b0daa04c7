package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/internal/services"
	"github.com/OdannysDeLaCruz/intrabb-backend-sub000/pkg/metrics"
)

// LedgerReporter produces the read-only ledger view for diagnostics.
type LedgerReporter interface {
	Report(ctx context.Context) (services.LedgerReport, error)
}

// NewRouter wires the health, metrics and diagnostics endpoints so the
// worker can be monitored.
func NewRouter(m *metrics.Metrics, ledger LedgerReporter, started time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "notification worker healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	})

	mux.Handle("/metrics", m.Handler())

	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		report, err := ledger.Report(r.Context())
		if err != nil {
			http.Error(w, `{"success":false,"message":"ledger report failed"}`, http.StatusInternalServerError)
			return
		}
		snapshot := m.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"queue":     snapshot.Queue,
			"delivery":  snapshot,
			"ledger":    report,
			"timestamp": time.Now().UTC(),
		})
	})

	return mux
}
