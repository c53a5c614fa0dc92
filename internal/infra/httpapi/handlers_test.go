package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"treatment_slot_service/internal/app"
	"treatment_slot_service/internal/domain/notify"
	"treatment_slot_service/internal/domain/slot"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlanAPI struct {
	createErr error
	created   []*slot.Slot
}

func (s *stubPlanAPI) CreatePlan(_ context.Context, caseID uuid.UUID, count int) ([]*slot.Slot, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *stubPlanAPI) Reschedule(_ context.Context, _ uuid.UUID, _ int, _ time.Time) ([]slot.Window, error) {
	return []slot.Window{}, nil
}

func (s *stubPlanAPI) DeletePlan(_ context.Context, _ uuid.UUID) error { return nil }

type stubVerifyAPI struct {
	verifyErr error
}

func (s *stubVerifyAPI) Verify(_ context.Context, _ uuid.UUID, _ string) error { return s.verifyErr }
func (s *stubVerifyAPI) MarkFinalized(_ context.Context, _ uuid.UUID) error    { return nil }

type stubAdminAPI struct {
	delivered int
}

func (s *stubAdminAPI) RunLifecycleScan(_ context.Context, _ time.Time) error { return nil }
func (s *stubAdminAPI) RunNotificationPass(_ context.Context, _ notify.Reason, _ time.Time) (int, error) {
	return s.delivered, nil
}

func newTestRouter(plans *stubPlanAPI, verify *stubVerifyAPI, admin *stubAdminAPI) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRouter(NewHandler(plans, verify, admin, log))
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreatePlanEndpoint(t *testing.T) {
	caseID := uuid.New()
	plans := &stubPlanAPI{created: []*slot.Slot{
		{ID: uuid.New(), SequenceNumber: 1, State: slot.StatePending, VerificationCode: "CODE000001"},
	}}
	router := newTestRouter(plans, &stubVerifyAPI{}, &stubAdminAPI{})

	rec := doJSON(t, router, http.MethodPost, "/cases/"+caseID.String()+"/plan", map[string]int{"count": 1})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Slots []slotResponse `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, 1, resp.Slots[0].SequenceNumber)
	assert.Equal(t, "CODE000001", resp.Slots[0].VerificationCode)
}

func TestCreatePlanEndpoint_Conflict(t *testing.T) {
	caseID := uuid.New()
	plans := &stubPlanAPI{createErr: app.ErrPlanAlreadyExists}
	router := newTestRouter(plans, &stubVerifyAPI{}, &stubAdminAPI{})

	rec := doJSON(t, router, http.MethodPost, "/cases/"+caseID.String()+"/plan", map[string]int{"count": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePlanEndpoint_BadCaseID(t *testing.T) {
	router := newTestRouter(&stubPlanAPI{}, &stubVerifyAPI{}, &stubAdminAPI{})

	rec := doJSON(t, router, http.MethodPost, "/cases/not-a-uuid/plan", map[string]int{"count": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEndpoint_StatusMapping(t *testing.T) {
	slotID := uuid.New()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"verified", nil, http.StatusOK},
		{"unknown code", app.ErrCodeNotFound, http.StatusNotFound},
		{"wrong slot", app.ErrCodeMismatch, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubPlanAPI{}, &stubVerifyAPI{verifyErr: tc.err}, &stubAdminAPI{})
			rec := doJSON(t, router, http.MethodPost, "/slots/"+slotID.String()+"/verify", map[string]string{"code": "QRCODE0001"})
			assert.Equal(t, tc.expected, rec.Code)
		})
	}
}

func TestVerifyEndpoint_MissingCode(t *testing.T) {
	router := newTestRouter(&stubPlanAPI{}, &stubVerifyAPI{}, &stubAdminAPI{})

	rec := doJSON(t, router, http.MethodPost, "/slots/"+uuid.New().String()+"/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationPassEndpoint(t *testing.T) {
	router := newTestRouter(&stubPlanAPI{}, &stubVerifyAPI{}, &stubAdminAPI{delivered: 7})

	rec := doJSON(t, router, http.MethodPost, "/admin/notification-pass", map[string]string{"reason": "STARTS_TOMORROW"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp["delivered"])
}

func TestRescheduleEndpoint_BadAnchor(t *testing.T) {
	router := newTestRouter(&stubPlanAPI{}, &stubVerifyAPI{}, &stubAdminAPI{})

	rec := doJSON(t, router, http.MethodPut, "/cases/"+uuid.New().String()+"/plan/schedule",
		map[string]interface{}{"frequencyDays": 14, "anchorDate": "01/02/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
