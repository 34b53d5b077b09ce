package presence

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/KAsare1/telecare-server/cmd/utils"
)

// Lookuper answers presence for parties connected to other instances.
type Lookuper interface {
	Lookup(ctx context.Context, partyID string) (Snapshot, error)
}

type PresenceHandler struct {
	registry *Registry
	remote   Lookuper
	logger   zerolog.Logger
}

// NewPresenceHandler serves presence from registry. remote may be nil.
func NewPresenceHandler(registry *Registry, remote Lookuper, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{registry: registry, remote: remote, logger: logger}
}

func (h *PresenceHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/presence/{partyId}", h.GetPresence).Methods("GET")
}

func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	partyID := mux.Vars(r)["partyId"]

	snap := h.registry.Get(partyID)
	if snap.Status == StatusOffline && h.remote != nil {
		remote, err := h.remote.Lookup(r.Context(), partyID)
		if err != nil {
			h.logger.Warn().Err(err).Str("party_id", partyID).Msg("remote presence lookup failed")
		} else {
			snap = remote
		}
	}
	utils.WriteJSON(w, http.StatusOK, snap)
}
