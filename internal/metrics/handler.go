package metrics

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/harmony-wg/agent/internal/manager"
	"github.com/harmony-wg/agent/internal/tunnel"
)

// scrapeRateLimit caps how often the collaborator re-renders the exposition
// body; a scrape storm (misconfigured Prometheus scrape_interval, or a
// client retry loop) should not turn stats collection into a hot loop over
// every tunnel's engine.
const scrapeRateLimit = 5 // scrapes per second

// Handler serves the /metrics endpoint: it reads tunnel stats through the
// Manager but never mutates anything. Rate limiting is grounded on
// golang.org/x/time/rate, the pack's only precedent for limiting the
// frequency of a repeated action.
type Handler struct {
	mgr     *manager.Manager
	version string
	limiter *rate.Limiter
}

func NewHandler(mgr *manager.Manager, version string) *Handler {
	return &Handler{
		mgr:     mgr,
		version: version,
		limiter: rate.NewLimiter(rate.Limit(scrapeRateLimit), scrapeRateLimit),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	snapshots := h.collect()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(Render(h.version, snapshots)))
}

func (h *Handler) collect() []NetworkSnapshot {
	all := h.mgr.StatusAll()
	out := make([]NetworkSnapshot, 0, len(all))
	for name, stats := range all {
		out = append(out, NetworkSnapshot{
			Name:        name,
			State:       classifyTunnelState(stats),
			TxBytes:     stats.TxBytes,
			RxBytes:     stats.RxBytes,
			PeersTotal:  stats.TotalPeers,
			PeersActive: stats.ActivePeers,
		})
	}
	return out
}

func classifyTunnelState(stats tunnel.Stats) NetworkState {
	isTransitional := stats.State == tunnel.Starting || stats.State == tunnel.Stopping
	isError := stats.State == tunnel.Error
	isActive := stats.State == tunnel.Active
	return Classify(isActive, isTransitional, isError, stats.TotalPeers, stats.ActivePeers)
}
