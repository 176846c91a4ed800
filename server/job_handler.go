package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"demixer/core/separation"
	"demixer/logger"
	"demixer/storage"
)

// SubmitJobHandler accepts an uploaded audio file, runs it through intake,
// stores the original in object storage and admits it as a new separation
// job. The previous job, whatever its state, is discarded.
func (h *APIHandler) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	st, user, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Cap the whole request body slightly above the file ceiling so a
	// too-large upload fails fast instead of buffering 2x the limit.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	defer file.Close()

	asset, err := h.intake.Accept(header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	objectKey := fmt.Sprintf("assets/%d/%s%s",
		user.ID, uuid.NewString(), strings.ToLower(filepath.Ext(asset.Name)))
	if err := storage.PutObject(r.Context(), objectKey, file, header.Size, asset.ContentType); err != nil {
		logger.Error("failed to store uploaded asset", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	asset.ObjectKey = objectKey

	job, err := st.ctrl.Submit(*asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Quota changed: sync the durable row and the snapshot. Both are
	// best-effort; the ledger already committed the debit.
	ledger := st.sess.Ledger()
	if err := h.userRepo.UpdateCredits(user.ID, ledger.Total(), ledger.Remaining()); err != nil {
		logger.Warn("failed to sync credit columns", logger.ErrorField(err))
	}
	if err := st.sess.Save(r.Context()); err != nil {
		logger.Warn("failed to save session snapshot after submit", logger.ErrorField(err))
	}

	st.beginRun(separation.NewRunner(h.cfg.JobTickInterval))

	writeJSON(w, http.StatusAccepted, job)
}

// JobStatusHandler returns the current job.
func (h *APIHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	job := st.ctrl.Job()
	if job == nil {
		writeError(w, http.StatusNotFound, "no_job", "no job has been submitted")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJobHandler cancels the running job. The spent credit stays spent.
func (h *APIHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := st.ctrl.Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st.ctrl.Job())
}

// SaveProjectHandler persists the completed job as a project. Sending the
// projectId returned by a previous save makes the call a no-op, so a
// double-clicked save button cannot duplicate the project.
func (h *APIHandler) SaveProjectHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		Name      string `json:"name"`
		ProjectID string `json:"projectId"`
	}
	if r.Body != nil {
		// An empty body means "save with defaults".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	project, err := st.ctrl.Persist(r.Context(), req.Name, req.ProjectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// ListProjectsHandler returns saved projects, most recent first.
func (h *APIHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	st, _, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": st.sess.Projects()})
}
