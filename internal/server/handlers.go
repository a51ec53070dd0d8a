package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signalserver/internal/ipfs"
	"signalserver/internal/manager"
	"signalserver/internal/types"
)

// Handler implements the operations callers see (spec.md §6), plus
// SetActiveSignalIds, over a Manager. Shaped after the teacher's per-module Handler struct
// (NewHandler constructor, RegisterRoutes, writeJSON/writeError helpers) —
// see internal/modules/portfolio/handlers/handlers.go.
type Handler struct {
	manager       *manager.Manager
	bothanVersion string
	log           zerolog.Logger
}

func NewHandler(m *manager.Manager, bothanVersion string, log zerolog.Logger) *Handler {
	return &Handler{
		manager:       m,
		bothanVersion: bothanVersion,
		log:           log.With().Str("handler", "rpc").Logger(),
	}
}

// RegisterRoutes mounts the four RPC operations under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/prices", h.HandleGetPrices)
		r.Post("/registry", h.HandleUpdateRegistry)
		r.Post("/active-signal-ids", h.HandleSetActiveSignalIDs)
		r.Get("/info", h.HandleGetInfo)
	})
}

type getPricesRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

type priceDTO struct {
	SignalID string `json:"signal_id"`
	// Price is the decimal value encoded as a fixed-point integer at
	// precision 9 (value * 10^9, rounded half-even), zero unless Status is
	// AVAILABLE. Never a float: see spec.md §6.
	Price  int64  `json:"price"`
	Status string `json:"status"`
}

type getPricesResponse struct {
	UUID   string     `json:"uuid"`
	Prices []priceDTO `json:"prices"`
}

// priceStatus maps a PriceStateKind onto the wire status enum. UNSPECIFIED
// exists only for wire compatibility with callers that zero-initialize the
// field; the resolver never produces it.
func priceStatus(k types.PriceStateKind) string {
	switch k {
	case types.PriceUnsupported:
		return "UNSUPPORTED"
	case types.PriceUnavailable:
		return "UNAVAILABLE"
	case types.PriceAvailable:
		return "AVAILABLE"
	default:
		return "UNSPECIFIED"
	}
}

// encodedPrice converts a Price to its fixed-point wire representation:
// multiply by 10^9 and round half to even (banker's rounding), per spec.md §6.
func encodedPrice(p types.Price) int64 {
	return p.Shift(9).RoundBank(0).IntPart()
}

func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	var req getPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	states, err := h.manager.GetPrices(req.SignalIDs)
	if err != nil {
		h.log.Error().Err(err).Msg("get prices failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	prices := make([]priceDTO, len(states))
	for i, id := range req.SignalIDs {
		dto := priceDTO{SignalID: id, Status: priceStatus(states[i].Kind)}
		if states[i].Kind == types.PriceAvailable {
			dto.Price = encodedPrice(states[i].Price)
		}
		prices[i] = dto
	}

	h.writeJSON(w, http.StatusOK, getPricesResponse{
		UUID:   uuid.NewString(),
		Prices: prices,
	})
}

type updateRegistryRequest struct {
	IPFSHash string `json:"ipfs_hash"`
	Version  string `json:"version"`
}

func (h *Handler) HandleUpdateRegistry(w http.ResponseWriter, r *http.Request) {
	var req updateRegistryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.manager.SetRegistryFromIPFS(r.Context(), req.IPFSHash, req.Version)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ipfs.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "registry not found at ipfs hash")
	case errors.Is(err, manager.ErrUnsupportedVersion), errors.Is(err, manager.ErrInvalidRegistry):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("update registry failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type setActiveSignalIDsRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

// HandleSetActiveSignalIDs wraps the original implementation's distinct
// SignalService.SetActiveSignalIds RPC (original_source/bothan-api/server/src/api/crypto.rs),
// dropped by the distilled spec.md but restored here: it recomputes, for
// every source reachable from the given signal ids, the worker query-id set
// it must subscribe to.
func (h *Handler) HandleSetActiveSignalIDs(w http.ResponseWriter, r *http.Request) {
	var req setActiveSignalIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.manager.SetActiveSignalIDs(req.SignalIDs); err != nil {
		h.log.Error().Err(err).Msg("set active signal ids failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

type getInfoResponse struct {
	BothanVersion               string   `json:"bothan_version"`
	RegistryIPFSHash            string   `json:"registry_ipfs_hash"`
	RegistryVersionRequirement  string   `json:"registry_version_requirement"`
	ActiveSources               []string `json:"active_sources"`
	MonitoringEnabled           bool     `json:"monitoring_enabled"`
}

func (h *Handler) HandleGetInfo(w http.ResponseWriter, r *http.Request) {
	hash, _, err := h.manager.RegistryIPFSHash()
	if err != nil {
		h.log.Error().Err(err).Msg("get info failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, getInfoResponse{
		BothanVersion:              h.bothanVersion,
		RegistryIPFSHash:           hash,
		RegistryVersionRequirement: h.manager.VersionRequirement(),
		ActiveSources:              h.manager.ActiveSources(),
		// Monitoring upload is out of scope (spec.md Non-goals); always
		// false, carried for wire compatibility per SUPPLEMENTED FEATURES.
		MonitoringEnabled: false,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
