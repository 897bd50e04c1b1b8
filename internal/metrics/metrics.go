// Package metrics holds the process counters for storage and backup
// activity and the journal gauges printed by `moji stats --prometheus`.
// A long-running `moji schedule run` serves the counters over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Path is where Serve answers scrapes.
const Path = "/metrics"

// Counter names.
const (
	LogWrites          = "moji_log_writes_total"
	CapacityRejections = "moji_capacity_rejections_total"
	QuotaFailures      = "moji_quota_failures_total"
	CorruptLoads       = "moji_corrupt_loads_total"
	BackupsPruned      = "moji_backups_pruned_total"
	Restores           = "moji_restores_total"
)

// LogWrite counts a successful collection write.
func LogWrite() { metrics.GetOrCreateCounter(LogWrites).Inc() }

// CapacityRejected counts a write refused by the headroom check. kind is
// "save" or "append".
func CapacityRejected(kind string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s{kind=%q}`, CapacityRejections, kind)).Inc()
}

// QuotaFailure counts a write refused by the underlying store.
func QuotaFailure() { metrics.GetOrCreateCounter(QuotaFailures).Inc() }

// CorruptLoad counts a stored collection that failed to decode.
func CorruptLoad() { metrics.GetOrCreateCounter(CorruptLoads).Inc() }

// BackupCreated counts a snapshot by origin.
func BackupCreated(origin string) {
	metrics.GetOrCreateCounter(BackupsCreatedName(origin)).Inc()
}

// BackupsCreatedName returns the labeled counter name for origin.
func BackupsCreatedName(origin string) string {
	return fmt.Sprintf(`moji_backups_created_total{origin=%q}`, origin)
}

// Pruned counts removed automatic backups.
func Pruned(n int) {
	if n > 0 {
		metrics.GetOrCreateCounter(BackupsPruned).Add(n)
	}
}

// Restored counts a completed restore.
func Restored() { metrics.GetOrCreateCounter(Restores).Inc() }

// Imported counts entries added by an import in the given mode.
func Imported(mode string, n int) {
	metrics.GetOrCreateCounter(ImportedName(mode)).Add(n)
}

// ImportedName returns the labeled counter name for mode.
func ImportedName(mode string) string {
	return fmt.Sprintf(`moji_imported_entries_total{mode=%q}`, mode)
}

// Value returns the current value of the named counter.
func Value(name string) uint64 {
	return metrics.GetOrCreateCounter(name).Get()
}

// Write prints every counter, followed by the Go runtime and process
// metrics, in Prometheus text format.
func Write(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

// Snapshot is a point-in-time view of the journal and its backups.
type Snapshot struct {
	Entries       int            `json:"entries"`
	UsedBytes     int64          `json:"usedBytes"`
	LimitBytes    int64          `json:"limitBytes"`
	CapacityBytes int64          `json:"capacityBytes"`
	Backups       map[string]int `json:"backups"`
	Moods         map[string]int `json:"moods"`
	Tags          map[string]int `json:"tags"`
}

// WriteSnapshot prints s as gauges in Prometheus text format. Tags are left
// out to keep label cardinality bounded.
func WriteSnapshot(w io.Writer, s Snapshot) {
	set := metrics.NewSet()
	gauge(set, "moji_entries", float64(s.Entries))
	gauge(set, "moji_used_bytes", float64(s.UsedBytes))
	gauge(set, "moji_limit_bytes", float64(s.LimitBytes))
	gauge(set, "moji_capacity_bytes", float64(s.CapacityBytes))
	for origin, n := range s.Backups {
		gauge(set, fmt.Sprintf(`moji_backups{origin=%q}`, origin), float64(n))
	}
	for mood, n := range s.Moods {
		gauge(set, fmt.Sprintf(`moji_entries_by_mood{mood=%q}`, mood), float64(n))
	}
	set.WritePrometheus(w)
}

func gauge(set *metrics.Set, name string, v float64) {
	set.NewGauge(name, func() float64 { return v })
}

// Handler writes the process counters and the Go runtime metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		Write(w)
	})
}

// Serve answers scrapes on ln until ctx is done, then shuts the server down.
func Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shut down metrics server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
