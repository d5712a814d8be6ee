package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/codebreaker-backend/internal/engine"
	"github.com/DoyleJ11/codebreaker-backend/internal/hub"
	"github.com/DoyleJ11/codebreaker-backend/internal/room"
)

type errorBody struct {
	Error string `json:"error"`
}

// RoomSummary lets a client check a code before joining.
type RoomSummary struct {
	RoomCode string       `json:"roomCode"`
	Phase    engine.Phase `json:"phase"`
	Players  int          `json:"players"`
	Capacity int          `json:"capacity"`
	Joinable bool         `json:"joinable"`
}

func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			lookupFailed(w, err)
			return
		}
		snap, err := lb.Snapshot(r.Context())
		if err != nil {
			lookupFailed(w, err)
			return
		}

		n := len(snap.State.Participants)
		writeJSON(w, http.StatusOK, RoomSummary{
			RoomCode: snap.Code,
			Phase:    snap.State.Phase,
			Players:  n,
			Capacity: engine.MaxParticipants,
			Joinable: snap.State.Phase == engine.PhaseLobby && n < engine.MaxParticipants,
		})
	}
}

func lookupFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, room.ErrRoomNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "room not found"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
