package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"demixer/core/playback"
	"demixer/model"
)

// LoadPlayerHandler mounts a track set into the player: either the current
// completed job's stems or a saved project's.
func (h *APIHandler) LoadPlayerHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		ProjectID string `json:"projectId"` // empty: load from the current job
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var tracks []model.Track
	if req.ProjectID != "" {
		project, ok := st.sess.FindProject(req.ProjectID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown_project", "project not found: "+req.ProjectID)
			return
		}
		tracks = project.Tracks
	} else {
		job := st.ctrl.Job()
		if job == nil || job.State != model.JobCompleted {
			writeError(w, http.StatusConflict, "invalid_state", "no completed job to load")
			return
		}
		tracks = job.ResultTracks
	}

	st.player.Load(tracks)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": tracks,
		"states": st.player.States(),
	})
}

// UnloadPlayerHandler dismounts all tracks.
func (h *APIHandler) UnloadPlayerHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	st.player.Unload()
	writeJSON(w, http.StatusOK, map[string]string{"status": "unloaded"})
}

// PlayerStateHandler returns every mounted track's transport state.
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"states": st.player.States()})
}

// TransportHandler applies one transport action to one track. Actions on
// one track never touch another track's state.
func (h *APIHandler) TransportHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	vars := mux.Vars(r)
	transport, err := st.player.Transport(vars["track_id"])
	if err != nil {
		if errors.Is(err, playback.ErrTrackNotLoaded) {
			writeError(w, http.StatusNotFound, "track_not_loaded", err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	var req struct {
		Value float64 `json:"value"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	switch vars["action"] {
	case "play":
		transport.Play()
	case "pause":
		transport.Pause()
	case "seek":
		transport.Seek(req.Value)
	case "volume":
		transport.SetVolume(req.Value)
	case "duration":
		// The client reports duration once its media element has loaded
		// metadata; until then seeks are no-ops.
		transport.SetDuration(req.Value)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown action: "+vars["action"])
		return
	}

	writeJSON(w, http.StatusOK, transport.State())
}
