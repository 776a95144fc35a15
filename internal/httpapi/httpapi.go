// Package httpapi implements the control-plane's own JSON/HTTP request
// surface: the thing the CLI and any automation talk to, in the same wire
// style as the Agent RPC it drives underneath.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"slicectl/internal/allocator"
	"slicectl/internal/domain"
	"slicectl/internal/ledger"
	"slicectl/internal/report"
	"slicectl/internal/topology"
	"slicectl/pkg/apperror"
	"slicectl/pkg/audit"
	"slicectl/pkg/interceptors"
	"slicectl/pkg/logger"
	"slicectl/pkg/passhash"
	"slicectl/pkg/ratelimit"
)

// Handler groups the collaborators every route needs.
type Handler struct {
	alloc    *allocator.Allocator
	ldg      *ledger.Store
	topo     *topology.Store
	reporter *report.Generator

	// readinessThreshold is the minimum AggregateResidualRatio before
	// /readyz reports degraded.
	readinessThreshold float64

	// auth is applied to the /v1/tunnels* routes only; nil disables it,
	// matching the default local/dev profile where bearer-token auth is off.
	auth *passhash.JWTManager

	// bwLimiter caps the aggregate Mbps of newly admitted tunnels per
	// window, independent of the topology's own residual-capacity check:
	// nil disables it, matching the default profile where every allocation
	// that fits in the topology is admitted immediately.
	bwLimiter ratelimit.Limiter
}

// New constructs a Handler. readinessThreshold of zero disables the
// degraded-capacity signal (readiness then only reflects process startup).
// auth may be nil to leave the control-plane API unauthenticated. bwLimiter
// may be nil to leave allocation admission unthrottled.
func New(alloc *allocator.Allocator, ldg *ledger.Store, topo *topology.Store, readinessThreshold float64, auth *passhash.JWTManager, bwLimiter ratelimit.Limiter) *Handler {
	return &Handler{
		alloc:              alloc,
		ldg:                ldg,
		topo:               topo,
		reporter:           report.New(),
		readinessThreshold: readinessThreshold,
		auth:               auth,
		bwLimiter:          bwLimiter,
	}
}

// Register wires every control-plane route onto mux, each behind
// interceptors.WithRoutePattern so metrics/audit see the templated path
// rather than raw tunnel IDs.
func (h *Handler) Register(mux *http.ServeMux) {
	protect := func(pattern string, fn http.HandlerFunc) http.Handler {
		return interceptors.Auth(h.auth)(interceptors.WithRoutePattern(pattern, fn))
	}
	mux.Handle("POST /v1/tunnels", protect("/v1/tunnels", h.handleAllocate))
	mux.Handle("GET /v1/tunnels", protect("/v1/tunnels", h.handleList))
	mux.Handle("DELETE /v1/tunnels/{tunnel_id}", protect("/v1/tunnels/{tunnel_id}", h.handleDeallocate))
	mux.Handle("GET /v1/tunnels/{tunnel_id}/audit", protect("/v1/tunnels/{tunnel_id}/audit", h.handleTunnelAudit))
	mux.HandleFunc("GET /v1/topology", interceptors.WithRoutePattern("/v1/topology", h.handleTopology))
	mux.HandleFunc("GET /v1/report.xlsx", interceptors.WithRoutePattern("/v1/report.xlsx", h.handleReport))
	mux.HandleFunc("GET /readyz", interceptors.WithRoutePattern("/readyz", h.handleReadyz))
}

// allocateRequest is the body of POST /v1/tunnels.
type allocateRequest struct {
	Src           string `json:"src"`
	Dst           string `json:"dst"`
	K             int    `json:"k"`
	Rate          int    `json:"rate"`
	Bidirectional bool   `json:"bidirectional"`
}

// Validate satisfies interceptors.Validator.
func (r *allocateRequest) Validate() error {
	if r.Src == "" {
		return apperror.New(apperror.CodeInvalidInput, "src is required").WithField("src")
	}
	if r.Dst == "" {
		return apperror.New(apperror.CodeInvalidInput, "dst is required").WithField("dst")
	}
	if r.Rate <= 0 {
		return apperror.New(apperror.CodeInvalidInput, "rate must be positive").WithField("rate")
	}
	return nil
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.New(apperror.CodeInvalidInput, "malformed JSON body"))
		return
	}
	if err := interceptors.ValidateBody(&req); err != nil {
		writeError(w, err)
		return
	}

	if h.bwLimiter != nil {
		allowed, err := h.bwLimiter.AllowN(r.Context(), "global", req.Rate)
		if err != nil {
			logger.Log.Warn("allocation bandwidth admission check failed", "error", err)
		} else if !allowed {
			writeError(w, apperror.New(apperror.CodeRateLimited,
				"allocation rate exceeds the configured admission budget, retry shortly"))
			return
		}
	}

	tun, err := h.alloc.Allocate(r.Context(), allocator.Request{
		Src:           req.Src,
		Dst:           req.Dst,
		K:             req.K,
		Rate:          req.Rate,
		Bidirectional: req.Bidirectional,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tunnelDTOFrom(tun))
}

func (h *Handler) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	id, err := parseTunnelID(r.PathValue("tunnel_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	tun, err := h.alloc.Deallocate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tunnelDTOFrom(tun))
}

// handleTunnelAudit returns the allocate/deallocate audit trail for one
// tunnel ID, newest first.
func (h *Handler) handleTunnelAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseTunnelID(r.PathValue("tunnel_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := audit.QueryTunnelHistory(r.Context(), id)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "failed to query tunnel audit history"))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tunnels := h.ldg.List()
	out := make([]*tunnelDTO, 0, len(tunnels))
	for _, t := range tunnels {
		out = append(out, tunnelDTOFrom(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := h.topo.Snapshot()
	writeJSON(w, http.StatusOK, topologyDTOFrom(snap))
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	data, err := h.reporter.Generate(h.ldg.List(), h.topo)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "failed to render report"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="slicectl-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.readinessThreshold > 0 && h.topo.AggregateResidualRatio() < h.readinessThreshold {
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseTunnelID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.New(apperror.CodeInvalidInput, "tunnel_id must be an integer").WithField("tunnel_id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperror.StatusCode(err), map[string]any{
		"error": map[string]any{
			"code":    apperror.Code(err),
			"message": err.Error(),
		},
	})
}

// tunnelDTO is the wire representation of a domain.Tunnel.
type tunnelDTO struct {
	TunnelID      int64    `json:"tunnel_id"`
	Path          []string `json:"path"`
	Rate          int      `json:"rate"`
	TCPPort       int      `json:"tcp_port"`
	Bidirectional bool     `json:"bidirectional"`
	SrcIP         string   `json:"src_ip"`
	DstIP         string   `json:"dst_ip"`
}

func tunnelDTOFrom(t *domain.Tunnel) *tunnelDTO {
	return &tunnelDTO{
		TunnelID:      t.TunnelID,
		Path:          t.Path,
		Rate:          t.Rate,
		TCPPort:       t.TCPPort,
		Bidirectional: t.Bidirectional,
		SrcIP:         t.SrcIP,
		DstIP:         t.DstIP,
	}
}

// linkDTO is the wire representation of one topology link.
type linkDTO struct {
	U        string `json:"u"`
	V        string `json:"v"`
	Residual int    `json:"residual"`
}

// topologyDTO is the wire representation of a topology.Snapshot.
type topologyDTO struct {
	Nodes []string  `json:"nodes"`
	Links []linkDTO `json:"links"`
}

func topologyDTOFrom(snap *topology.Snapshot) *topologyDTO {
	nodes := make([]string, 0, len(snap.Nodes))
	for name := range snap.Nodes {
		nodes = append(nodes, name)
	}
	links := make([]linkDTO, 0, len(snap.Links))
	for key, link := range snap.Links {
		links = append(links, linkDTO{U: key.U, V: key.V, Residual: link.Residual})
	}
	return &topologyDTO{Nodes: nodes, Links: links}
}
