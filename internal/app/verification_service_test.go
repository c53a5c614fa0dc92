package app

import (
	"context"
	"testing"

	"treatment_slot_service/internal/domain/slot"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerificationFixture() (*VerificationService, *fakeSlotRepo, *slot.Slot, *slot.Slot) {
	repo := newFakeSlotRepo(newFakeCaseRepo())
	caseID := uuid.New()
	first := &slot.Slot{ID: uuid.New(), CaseID: caseID, SequenceNumber: 1, State: slot.StatePending, VerificationCode: "QRCODE0001"}
	second := &slot.Slot{ID: uuid.New(), CaseID: caseID, SequenceNumber: 2, State: slot.StatePending, VerificationCode: "QRCODE0002"}
	repo.add(first)
	repo.add(second)
	return NewVerificationService(repo, testLogger()), repo, first, second
}

func TestVerify(t *testing.T) {
	svc, repo, first, _ := newVerificationFixture()

	require.NoError(t, svc.Verify(context.Background(), first.ID, "QRCODE0001"))

	stored, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestVerify_Idempotent(t *testing.T) {
	svc, repo, first, _ := newVerificationFixture()

	require.NoError(t, svc.Verify(context.Background(), first.ID, "QRCODE0001"))
	require.NoError(t, svc.Verify(context.Background(), first.ID, "QRCODE0001"))

	stored, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified, "re-verifying must never unverify")
}

func TestVerify_UnknownCode(t *testing.T) {
	svc, _, first, _ := newVerificationFixture()

	err := svc.Verify(context.Background(), first.ID, "NO-SUCH-CODE")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestVerify_CodeOfDifferentSlot(t *testing.T) {
	svc, repo, first, second := newVerificationFixture()

	// A real code presented against the wrong slot of the same case.
	err := svc.Verify(context.Background(), first.ID, second.VerificationCode)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	stored, err := repo.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestMarkFinalized(t *testing.T) {
	svc, repo, first, _ := newVerificationFixture()

	require.NoError(t, svc.MarkFinalized(context.Background(), first.ID))

	stored, err := repo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Finalized)
}

func TestMarkFinalized_UnknownSlot(t *testing.T) {
	svc, _, _, _ := newVerificationFixture()

	assert.Error(t, svc.MarkFinalized(context.Background(), uuid.New()))
}
