// internal/infra/httpapi/handlers.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"treatment_slot_service/internal/app"
	"treatment_slot_service/internal/domain/notify"
	"treatment_slot_service/internal/domain/slot"
	idb "treatment_slot_service/internal/infra/database"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// PlanAPI is the plan management surface consumed by the HTTP layer.
type PlanAPI interface {
	CreatePlan(ctx context.Context, caseID uuid.UUID, count int) ([]*slot.Slot, error)
	Reschedule(ctx context.Context, caseID uuid.UUID, frequencyDays int, anchor time.Time) ([]slot.Window, error)
	DeletePlan(ctx context.Context, caseID uuid.UUID) error
}

// VerifyAPI is the verification surface consumed by the HTTP layer.
type VerifyAPI interface {
	Verify(ctx context.Context, slotID uuid.UUID, code string) error
	MarkFinalized(ctx context.Context, slotID uuid.UUID) error
}

// AdminAPI exposes the background passes for manual triggering.
type AdminAPI interface {
	RunLifecycleScan(ctx context.Context, now time.Time) error
	RunNotificationPass(ctx context.Context, reason notify.Reason, now time.Time) (int, error)
}

type Handler struct {
	plans  PlanAPI
	verify VerifyAPI
	admin  AdminAPI
	logger *logrus.Logger
}

func NewHandler(plans PlanAPI, verify VerifyAPI, admin AdminAPI, logger *logrus.Logger) *Handler {
	return &Handler{plans: plans, verify: verify, admin: admin, logger: logger}
}

// NewRouter wires all routes of the admin surface.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/cases/{caseID}/plan", h.CreatePlan).Methods(http.MethodPost)
	r.HandleFunc("/cases/{caseID}/plan", h.DeletePlan).Methods(http.MethodDelete)
	r.HandleFunc("/cases/{caseID}/plan/schedule", h.Reschedule).Methods(http.MethodPut)
	r.HandleFunc("/slots/{slotID}/verify", h.VerifySlot).Methods(http.MethodPost)
	r.HandleFunc("/slots/{slotID}/finalize", h.FinalizeSlot).Methods(http.MethodPost)
	r.HandleFunc("/admin/lifecycle-scan", h.LifecycleScan).Methods(http.MethodPost)
	r.HandleFunc("/admin/notification-pass", h.NotificationPass).Methods(http.MethodPost)
	return r
}

type createPlanRequest struct {
	Count int `json:"count"`
}

type slotResponse struct {
	ID               string `json:"id"`
	SequenceNumber   int    `json:"sequenceNumber"`
	State            string `json:"state"`
	VerificationCode string `json:"verificationCode"`
}

func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathUUID(w, r, "caseID")
	if !ok {
		return
	}
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slots, err := h.plans.CreatePlan(r.Context(), caseID, req.Count)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, slotResponse{
			ID:               s.ID.String(),
			SequenceNumber:   s.SequenceNumber,
			State:            string(s.State),
			VerificationCode: s.VerificationCode,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"slots": resp})
}

type rescheduleRequest struct {
	FrequencyDays int    `json:"frequencyDays"`
	AnchorDate    string `json:"anchorDate"` // YYYY-MM-DD
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathUUID(w, r, "caseID")
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	anchor, err := time.Parse("2006-01-02", req.AnchorDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "anchorDate must be YYYY-MM-DD")
		return
	}

	windows, err := h.plans.Reschedule(r.Context(), caseID, req.FrequencyDays, anchor)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"windows": windows})
}

func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathUUID(w, r, "caseID")
	if !ok {
		return
	}
	if err := h.plans.DeletePlan(r.Context(), caseID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) VerifySlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "slotID")
	if !ok {
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.verify.Verify(r.Context(), slotID, req.Code); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verified": true})
}

func (h *Handler) FinalizeSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "slotID")
	if !ok {
		return
	}
	if err := h.verify.MarkFinalized(r.Context(), slotID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"finalized": true})
}

func (h *Handler) LifecycleScan(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.RunLifecycleScan(r.Context(), time.Now()); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}

type notificationPassRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) NotificationPass(w http.ResponseWriter, r *http.Request) {
	var req notificationPassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	delivered, err := h.admin.RunNotificationPass(r.Context(), notify.Reason(req.Reason), time.Now())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"delivered": delivered})
}

// writeServiceError maps service sentinels onto HTTP statuses. Unrecognized
// errors are logged and reported as 500 without leaking detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidSlotCount),
		errors.Is(err, slot.ErrInvalidFrequency),
		errors.Is(err, app.ErrUnknownReason):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrPlanAlreadyExists),
		errors.Is(err, app.ErrCodeMismatch),
		errors.Is(err, slot.ErrSequenceConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrCodeNotFound),
		errors.Is(err, slot.ErrEmptySlotList),
		errors.Is(err, idb.ErrSlotNotFound),
		errors.Is(err, idb.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Errorf("Unhandled service error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
