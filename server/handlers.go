package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"demixer/config"
	"demixer/core/intake"
	"demixer/core/separation"
	"demixer/logger"
	"demixer/model"
	"demixer/repository"
)

// APIHandler holds dependencies for HTTP handlers.
type APIHandler struct {
	userRepo repository.UserRepository
	catalog  *config.PlanCatalog
	intake   *intake.Intake
	studios  *StudioManager
	cfg      *config.Config
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	userRepo repository.UserRepository,
	catalog *config.PlanCatalog,
	fileIntake *intake.Intake,
	studios *StudioManager,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo: userRepo,
		catalog:  catalog,
		intake:   fileIntake,
		studios:  studios,
		cfg:      cfg,
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to encode response", logger.ErrorField(err))
		}
	}
}

// writeError writes a JSON error body with a machine-readable code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeDomainError maps core error types onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var quotaErr *separation.QuotaExhaustedError
	var stateErr *separation.InvalidStateError
	var backendErr *separation.BackendError

	switch {
	case errors.Is(err, separation.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     "quota_exhausted",
			"message":   quotaErr.Error(),
			"remaining": quotaErr.Remaining,
			"needed":    quotaErr.Needed,
		})
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_state", stateErr.Error())
	case errors.As(err, &backendErr):
		writeError(w, http.StatusBadGateway, "backend_failure", backendErr.Error())
	case errors.Is(err, intake.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, intake.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	default:
		logger.Error("internal error", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// ProfileHandler returns the dashboard summary: identity, plan, quota and
// saved projects.
func (h *APIHandler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	st, user, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	plan := h.catalog.Plan(user.PlanID)
	ledger := st.sess.Ledger()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": user,
		"plan": plan,
		"quota": map[string]int{
			"total":     ledger.Total(),
			"remaining": ledger.Remaining(),
		},
		"projects": st.sess.Projects(),
	})
}

// PlansHandler lists the current plan catalog.
func (h *APIHandler) PlansHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": h.catalog.Plans()})
}

// SelectPlanHandler moves the user to a plan and resets their allotment to
// its nominal credits.
func (h *APIHandler) SelectPlanHandler(w http.ResponseWriter, r *http.Request) {
	st, user, err := h.studioForRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req struct {
		PlanID string `json:"planId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "planId is required")
		return
	}

	plan := h.catalog.Plan(req.PlanID)
	if plan.ID != req.PlanID {
		writeError(w, http.StatusNotFound, "unknown_plan", "unknown plan: "+req.PlanID)
		return
	}

	if err := h.userRepo.UpdatePlan(user.ID, plan.ID, plan.Credits, plan.Credits); err != nil {
		writeDomainError(w, err)
		return
	}

	// Reset the live ledger and persist it, otherwise the stored snapshot
	// would resurrect the old allotment on the next login.
	st.sess.ResetLedger(plan)
	if err := st.sess.Save(r.Context()); err != nil {
		logger.Warn("failed to save session snapshot after plan change",
			logger.ErrorField(err))
	}

	logger.Info("plan changed",
		logger.Int64("userId", user.ID), logger.String("planId", plan.ID))
	writeJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}

// studioForRequest resolves the authenticated user and their studio.
func (h *APIHandler) studioForRequest(r *http.Request) (*studio, *model.User, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, nil, separation.ErrUnauthenticated
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, separation.ErrUnauthenticated
	}

	st := h.studios.StudioFor(r.Context(), user, h.catalog.Plan(user.PlanID))
	return st, user, nil
}
