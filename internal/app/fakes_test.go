package app

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"time"

	"treatment_slot_service/internal/domain/patientcase"
	"treatment_slot_service/internal/domain/push"
	"treatment_slot_service/internal/domain/slot"
	idb "treatment_slot_service/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// MockPushClient is a mock implementation of push.Client
type MockPushClient struct {
	mock.Mock
}

func (m *MockPushClient) Send(ctx context.Context, msg push.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// fakeCaseRepo is an in-memory patientcase.Repository
type fakeCaseRepo struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*patientcase.Case
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: make(map[uuid.UUID]*patientcase.Case)}
}

func (r *fakeCaseRepo) add(c *patientcase.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = c
}

func (r *fakeCaseRepo) GetByID(_ context.Context, id uuid.UUID) (*patientcase.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, idb.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

// fakeSlotRepo is an in-memory slot.Repository backed by the same case store,
// so plan creation flips the case flag like the real transaction does.
type fakeSlotRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot.Slot
	cases *fakeCaseRepo

	// forcedCollisions makes CodeExists report a collision for the first n
	// lookups, regardless of stored codes.
	forcedCollisions int
}

func newFakeSlotRepo(cases *fakeCaseRepo) *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[uuid.UUID]*slot.Slot), cases: cases}
}

func (r *fakeSlotRepo) add(s *slot.Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = s
}

func (r *fakeSlotRepo) CreatePlan(_ context.Context, caseID uuid.UUID, slots []*slot.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases.mu.Lock()
	defer r.cases.mu.Unlock()

	c, ok := r.cases.cases[caseID]
	if !ok {
		return idb.ErrCaseNotFound
	}
	if c.PlanCreated {
		return idb.ErrPlanAlreadyExists
	}
	c.PlanCreated = true
	for _, s := range slots {
		cp := *s
		r.slots[s.ID] = &cp
	}
	return nil
}

func (r *fakeSlotRepo) DeletePlan(_ context.Context, caseID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.slots {
		if s.CaseID == caseID {
			delete(r.slots, id)
		}
	}
	r.cases.mu.Lock()
	defer r.cases.mu.Unlock()
	if c, ok := r.cases.cases[caseID]; ok {
		c.PlanCreated = false
	}
	return nil
}

func (r *fakeSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, idb.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSlotRepo) GetByVerificationCode(_ context.Context, code string) (*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.VerificationCode == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, idb.ErrSlotNotFound
}

func (r *fakeSlotRepo) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedCollisions > 0 {
		r.forcedCollisions--
		return true, nil
	}
	for _, s := range r.slots {
		if s.VerificationCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSlotRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*slot.Slot{}
	for _, s := range r.slots {
		if s.CaseID == caseID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (r *fakeSlotRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*slot.Slot{}
	for _, id := range ids {
		if s, ok := r.slots[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) UpdateWindows(_ context.Context, caseID uuid.UUID, windows []slot.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range windows {
		updated := false
		for _, s := range r.slots {
			if s.CaseID == caseID && s.SequenceNumber == w.SequenceNumber {
				s.StartAt = sql.NullTime{Time: w.StartAt, Valid: true}
				s.EndAt = sql.NullTime{Time: w.EndAt, Valid: true}
				updated = true
			}
		}
		if !updated {
			return idb.ErrSlotNotFound
		}
	}
	return nil
}

func (r *fakeSlotRepo) MarkInProgress(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []uuid.UUID{}
	for _, s := range r.slots {
		if s.State == slot.StatePending && s.StartAt.Valid &&
			!s.StartAt.Time.After(now) && !s.EndAt.Time.Before(now) {
			s.State = slot.StateInProgress
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (r *fakeSlotRepo) MarkOverdue(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []uuid.UUID{}
	for _, s := range r.slots {
		if (s.State == slot.StatePending || s.State == slot.StateInProgress) &&
			s.EndAt.Valid && s.EndAt.Time.Before(now) {
			s.State = slot.StateOverdue
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (r *fakeSlotRepo) ListPendingStartingBetween(_ context.Context, from, to time.Time) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*slot.Slot{}
	for _, s := range r.slots {
		if s.State == slot.StatePending && s.StartAt.Valid &&
			!s.StartAt.Time.Before(from) && !s.StartAt.Time.After(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) ListOverdueUnfinalized(_ context.Context, endedBefore time.Time) ([]*slot.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*slot.Slot{}
	for _, s := range r.slots {
		if s.State == slot.StateOverdue && !s.Finalized &&
			s.EndAt.Valid && s.EndAt.Time.Before(endedBefore) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSlotRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return idb.ErrSlotNotFound
	}
	s.Verified = true
	return nil
}

func (r *fakeSlotRepo) MarkFinalized(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return idb.ErrSlotNotFound
	}
	s.Finalized = true
	return nil
}

var _ slot.Repository = (*fakeSlotRepo)(nil)
var _ patientcase.Repository = (*fakeCaseRepo)(nil)
