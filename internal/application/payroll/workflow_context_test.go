package payroll_test

import (
	"context"
	"testing"

	apppayroll "github.com/hrpay/backend/internal/application/payroll"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowRecords runs duringRead after the store answered and before the
// caller sees the rows, standing in for a write that races a reload.
type slowRecords struct {
	payroll.RecordRepository
	duringRead func()
}

func (s *slowRecords) FindCurrentByPeriod(ctx context.Context, key payroll.PeriodKey) ([]*payroll.PayrollRecord, error) {
	records, err := s.RecordRepository.FindCurrentByPeriod(ctx, key)
	if s.duringRead != nil {
		hook := s.duringRead
		s.duringRead = nil
		hook()
	}
	return records, err
}

func TestWorkflowContext_RefreshKeepsConcurrentTransition(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	records := h.process(8, 2024)
	key, err := payroll.NewPeriodKey(h.businessID, 8, 2024)
	require.NoError(t, err)

	store := &slowRecords{RecordRepository: h.repos.Records}
	workflow := apppayroll.NewPayrollWorkflowContext(h.repos.Periods, store)
	_, err = workflow.Refresh(h.ctx, key)
	require.NoError(t, err)

	store.duringRead = func() {
		r := h.record(records[0].ID)
		require.NoError(t, r.Approve())
		require.NoError(t, h.repos.Records.SaveTransition(h.ctx, r, payroll.RecordStatusProcessed))
		workflow.Apply(key, r)
	}
	snap, err := workflow.Refresh(h.ctx, key)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, payroll.RecordStatusApproved, snap.Records[0].Status, "older read must not undo the approval")

	snap, err = workflow.Refresh(h.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payroll.RecordStatusApproved, snap.Records[0].Status)
}

func TestWorkflowContext_RefreshKeepsConcurrentReplace(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	first := h.process(9, 2024)
	key, err := payroll.NewPeriodKey(h.businessID, 9, 2024)
	require.NoError(t, err)

	store := &slowRecords{RecordRepository: h.repos.Records}
	workflow := apppayroll.NewPayrollWorkflowContext(h.repos.Periods, store)

	var second []*payroll.PayrollRecord
	store.duringRead = func() {
		second = h.process(9, 2024)
		workflow.Replace(key, false, second)
	}
	snap, err := workflow.Refresh(h.ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(second), ids(snap.Records))
	_, stale := snap.Record(first[0].ID)
	assert.False(t, stale, "superseded record from the older read")
}

func TestWorkflowContext_ApplyIgnoresOlderVersion(t *testing.T) {
	h := newHarness(t)
	h.hire("Alice Njeri", 90000)
	records := h.process(10, 2024)
	key, err := payroll.NewPeriodKey(h.businessID, 10, 2024)
	require.NoError(t, err)

	workflow := apppayroll.NewPayrollWorkflowContext(h.repos.Periods, h.repos.Records)
	_, err = workflow.Refresh(h.ctx, key)
	require.NoError(t, err)

	stale := h.record(records[0].ID)
	approved := h.record(records[0].ID)
	require.NoError(t, approved.Approve())
	workflow.Apply(key, approved)
	workflow.Apply(key, stale)

	snap, err := workflow.Snapshot(h.ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payroll.RecordStatusApproved, snap.Records[0].Status)
}
