package payroll

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hrpay/backend/internal/domain/payroll"
	"github.com/hrpay/backend/internal/domain/shared"
)

// PeriodSnapshot is an immutable view of the current records of one period.
type PeriodSnapshot struct {
	Key         payroll.PeriodKey
	Locked      bool
	Records     []*payroll.PayrollRecord
	RefreshedAt time.Time
}

// Record returns the record with the given id, if it is current in the period.
func (s *PeriodSnapshot) Record(id uuid.UUID) (*payroll.PayrollRecord, bool) {
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Status derives the period status from the snapshot.
func (s *PeriodSnapshot) Status() payroll.PeriodStatus {
	return payroll.DerivePeriodStatus(s.Records)
}

// WithStatus returns the records currently in the given status.
func (s *PeriodSnapshot) WithStatus(status payroll.RecordStatus) []*payroll.PayrollRecord {
	var out []*payroll.PayrollRecord
	for _, r := range s.Records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

type periodView struct {
	locked      bool
	records     map[uuid.UUID]*payroll.PayrollRecord
	refreshedAt time.Time
	// written holds the write sequence of each record; replacedAt is the
	// sequence of the Replace that created the view.
	written    map[uuid.UUID]uint64
	replacedAt uint64
}

// PayrollWorkflowContext is the shared, per-period view of payroll records.
// The state machine writes through it after every committed transition so a
// reader in the same process always observes its own writes. It is safe for
// concurrent use.
type PayrollWorkflowContext struct {
	mu      sync.RWMutex
	periods payroll.PeriodRepository
	records payroll.RecordRepository
	views   map[payroll.PeriodKey]*periodView
	seq     uint64
	// ttl bounds how long a view is trusted; writes from other instances
	// only show up after a reload. Zero keeps views until invalidated.
	ttl     time.Duration
}

// NewPayrollWorkflowContext creates an empty workflow context
func NewPayrollWorkflowContext(periods payroll.PeriodRepository, records payroll.RecordRepository) *PayrollWorkflowContext {
	return &PayrollWorkflowContext{
		periods: periods,
		records: records,
		views:   make(map[payroll.PeriodKey]*periodView),
	}
}

// SetTTL sets the age after which Snapshot reloads a period
func (w *PayrollWorkflowContext) SetTTL(ttl time.Duration) {
	w.mu.Lock()
	w.ttl = ttl
	w.mu.Unlock()
}

// Refresh reloads the period from the store and returns the fresh snapshot.
// Writes through the context that land while the store is read are kept.
func (w *PayrollWorkflowContext) Refresh(ctx context.Context, key payroll.PeriodKey) (*PeriodSnapshot, error) {
	w.mu.RLock()
	readFrom := w.seq
	w.mu.RUnlock()

	locked := false
	period, err := w.periods.FindByKey(ctx, key)
	switch {
	case err == nil:
		locked = period.Locked
	case errors.Is(err, shared.ErrNotFound):
	default:
		return nil, err
	}

	records, err := w.records.FindCurrentByPeriod(ctx, key)
	if err != nil {
		return nil, err
	}

	w.merge(key, locked, records, readFrom)
	return w.snapshot(key), nil
}

// Snapshot returns the cached view of a period, loading it on first use.
func (w *PayrollWorkflowContext) Snapshot(ctx context.Context, key payroll.PeriodKey) (*PeriodSnapshot, error) {
	if s := w.snapshot(key); s != nil && !w.expired(s) {
		return s, nil
	}
	return w.Refresh(ctx, key)
}

// Replace swaps the whole view of a period, e.g. after a processing run.
func (w *PayrollWorkflowContext) Replace(key payroll.PeriodKey, locked bool, records []*payroll.PayrollRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	view := newPeriodView(locked, w.seq)
	for _, r := range records {
		if r.IsCurrent() {
			view.put(r, w.seq)
		}
	}
	w.views[key] = view
}

// merge installs a store read that started at sequence readFrom. A cached
// record written after that point wins unless the read carries a newer
// version; a view replaced after that point is kept as the base.
func (w *PayrollWorkflowContext) merge(key payroll.PeriodKey, locked bool, records []*payroll.PayrollRecord, readFrom uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	cached, ok := w.views[key]
	if !ok {
		view := newPeriodView(locked, w.seq)
		for _, r := range records {
			if r.IsCurrent() {
				view.put(r, w.seq)
			}
		}
		w.views[key] = view
		return
	}

	view := newPeriodView(locked || cached.locked, w.seq)
	if cached.replacedAt > readFrom {
		for id, r := range cached.records {
			view.put(r, cached.written[id])
		}
		for _, r := range records {
			if c, ok := view.records[r.ID]; ok && r.Version > c.Version {
				view.put(r, w.seq)
			}
		}
		view.replacedAt = cached.replacedAt
		w.views[key] = view
		return
	}

	for _, r := range records {
		if r.IsCurrent() {
			view.put(r, w.seq)
		}
	}
	for id, c := range cached.records {
		if cached.written[id] <= readFrom {
			continue
		}
		if r, ok := view.records[id]; !ok || c.Version >= r.Version {
			view.put(c, cached.written[id])
		}
	}
	w.views[key] = view
}

func newPeriodView(locked bool, seq uint64) *periodView {
	return &periodView{
		locked:      locked,
		records:     make(map[uuid.UUID]*payroll.PayrollRecord),
		written:     make(map[uuid.UUID]uint64),
		refreshedAt: time.Now(),
		replacedAt:  seq,
	}
}

func (v *periodView) put(r *payroll.PayrollRecord, seq uint64) {
	v.records[r.ID] = cloneRecord(r)
	v.written[r.ID] = seq
}

// Apply writes committed records through to a cached period. Periods that
// were never loaded are left alone; the next Snapshot loads them.
func (w *PayrollWorkflowContext) Apply(key payroll.PeriodKey, records ...*payroll.PayrollRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	view, ok := w.views[key]
	if !ok {
		return
	}
	w.seq++
	for _, r := range records {
		if !r.IsCurrent() {
			delete(view.records, r.ID)
			delete(view.written, r.ID)
			continue
		}
		if c, ok := view.records[r.ID]; ok && c.Version > r.Version {
			continue
		}
		view.put(r, w.seq)
		if r.Status == payroll.RecordStatusPaid {
			view.locked = true
		}
	}
}

// MarkLocked records that the period was locked by a payment
func (w *PayrollWorkflowContext) MarkLocked(key payroll.PeriodKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if view, ok := w.views[key]; ok {
		view.locked = true
	}
}

// Invalidate drops the cached view of a period
func (w *PayrollWorkflowContext) Invalidate(key payroll.PeriodKey) {
	w.mu.Lock()
	delete(w.views, key)
	w.mu.Unlock()
}

func (w *PayrollWorkflowContext) expired(s *PeriodSnapshot) bool {
	w.mu.RLock()
	ttl := w.ttl
	w.mu.RUnlock()
	return ttl > 0 && time.Since(s.RefreshedAt) > ttl
}

func (w *PayrollWorkflowContext) snapshot(key payroll.PeriodKey) *PeriodSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	view, ok := w.views[key]
	if !ok {
		return nil
	}
	records := make([]*payroll.PayrollRecord, 0, len(view.records))
	for _, r := range view.records {
		records = append(records, cloneRecord(r))
	}
	sortRecords(records)
	return &PeriodSnapshot{
		Key:         key,
		Locked:      view.locked,
		Records:     records,
		RefreshedAt: view.refreshedAt,
	}
}

func cloneRecord(r *payroll.PayrollRecord) *payroll.PayrollRecord {
	cp := *r
	cp.Allowances = append([]payroll.AllowanceLine(nil), r.Allowances...)
	cp.Deductions = append([]payroll.DeductionLine(nil), r.Deductions...)
	cp.ClearDomainEvents()
	return &cp
}

// sortRecords orders records by employee name, then id, matching the store.
func sortRecords(records []*payroll.PayrollRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].EmployeeName != records[j].EmployeeName {
			return records[i].EmployeeName < records[j].EmployeeName
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}
