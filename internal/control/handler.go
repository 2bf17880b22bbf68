package control

import (
	"context"
	"log/slog"
	"sort"

	"github.com/harmony-wg/agent/internal/agenterr"
	"github.com/harmony-wg/agent/internal/manager"
	"github.com/harmony-wg/agent/internal/netconfig"
)

// Handler dispatches control requests to the Tunnel Manager, rendering the
// reply shape original_source/src/control/handler.rs's CommandHandler
// builds for each action.
type Handler struct {
	logger *slog.Logger
	mgr    *manager.Manager
}

func NewHandler(logger *slog.Logger, mgr *manager.Manager) *Handler {
	return &Handler{logger: logger, mgr: mgr}
}

// Handle executes one request and always returns a Response — errors are
// carried in the response body, never returned to the caller, so the
// connection loop can always write a reply line.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	var (
		data any
		err  error
	)

	switch req.Action {
	case ActionConnect:
		data, err = h.handleConnect(ctx, req)
	case ActionDisconnect:
		data, err = h.handleDisconnect(ctx, req)
	case ActionStatus:
		data, err = h.handleStatus(req)
	case ActionReload:
		data, err = h.handleReload(ctx, req)
	case ActionRotateKeys:
		data, err = h.handleRotateKeys(req)
	default:
		err = agenterr.Newf(agenterr.KindParseError, "unknown action %q", req.Action)
	}

	if err != nil {
		h.logger.Warn("request failed", "id", req.ID, "action", req.Action, "network", req.Network, "error", err)
		return errorResponse(req.ID, err)
	}
	return successResponse(req.ID, data)
}

func (h *Handler) handleConnect(ctx context.Context, req Request) (any, error) {
	if err := h.mgr.Start(ctx, req.Network); err != nil {
		return nil, err
	}
	return connectPayload(h.mgr, req.Network)
}

func (h *Handler) handleDisconnect(ctx context.Context, req Request) (any, error) {
	if err := h.mgr.Stop(ctx, req.Network); err != nil {
		return nil, err
	}
	return map[string]any{"network": req.Network, "state": "stopped"}, nil
}

func (h *Handler) handleStatus(req Request) (any, error) {
	return statusPayload(h.mgr, req.Network)
}

func (h *Handler) handleReload(ctx context.Context, req Request) (any, error) {
	var nc *netconfig.NetworkConfig
	if len(req.Config) > 0 {
		var err error
		nc, err = netconfig.DecodeNetworkJSON(req.Network, req.Config)
		if err != nil {
			return nil, err
		}
	}
	if nc == nil {
		return nil, agenterr.New(agenterr.KindConfigError, "reload requires a config payload")
	}
	if err := h.mgr.Reload(ctx, req.Network, nc); err != nil {
		return nil, err
	}
	payload, err := statusPayload(h.mgr, req.Network)
	if err != nil {
		return nil, err
	}
	m, _ := payload.(map[string]any)
	m["reloaded"] = true
	return m, nil
}

// handleRotateKeys is reserved; key rotation is not implemented in this
// release, matching original_source/src/control/handler.rs::handle_rotate_keys.
func (h *Handler) handleRotateKeys(_ Request) (any, error) {
	return nil, agenterr.New(agenterr.KindInternalError, "key rotation not implemented")
}

// connectPayload renders the connect action's documented reply shape: a flat
// peer count rather than status's richer peers object.
func connectPayload(mgr *manager.Manager, network string) (any, error) {
	stats, err := mgr.Status(network)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"network":   network,
		"state":     stats.State.String(),
		"interface": stats.Interface,
		"peers":     stats.TotalPeers,
	}, nil
}

func statusPayload(mgr *manager.Manager, network string) (any, error) {
	stats, err := mgr.Status(network)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stats.PerPeer))
	for _, p := range stats.PerPeer {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return map[string]any{
		"network":   network,
		"state":     stats.State.String(),
		"interface": stats.Interface,
		"peers": map[string]any{
			"total":  stats.TotalPeers,
			"active": stats.ActivePeers,
			"names":  names,
		},
		"traffic": map[string]any{
			"tx_bytes": stats.TxBytes,
			"rx_bytes": stats.RxBytes,
		},
	}, nil
}
