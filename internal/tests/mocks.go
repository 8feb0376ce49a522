package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// ErrInjected is the default error returned by failing mocks.
var ErrInjected = errors.New("injected failure")

// ──────────────────────────────────────────────
// MOCK UNIFIED LOG
// ──────────────────────────────────────────────

// MockUnifiedLog is a mock implementation of UnifiedLogRepository.
type MockUnifiedLog struct {
	mu      sync.RWMutex
	records []domain.LogRecord

	// Counters for verification
	AppendCallCount int32
	PruneCallCount  int32

	// Error injection
	AppendError error
	PruneError  error

	// AppendFailures fails that many Append calls before succeeding.
	AppendFailures int32
}

// NewMockUnifiedLog creates a new mock unified log.
func NewMockUnifiedLog() *MockUnifiedLog {
	return &MockUnifiedLog{}
}

func (m *MockUnifiedLog) Load(ctx context.Context) ([]domain.LogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LogRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *MockUnifiedLog) Append(ctx context.Context, rec domain.LogRecord) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	if atomic.AddInt32(&m.AppendFailures, -1) >= 0 {
		return ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MockUnifiedLog) Prune(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.PruneCallCount, 1)
	if m.PruneError != nil {
		return m.PruneError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if r.TripID != tripID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *MockUnifiedLog) Swap(ctx context.Context, records []domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]domain.LogRecord(nil), records...)
	return nil
}

// Len returns the number of stored records for test assertions.
func (m *MockUnifiedLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// ──────────────────────────────────────────────
// MOCK ARCHIVE REPOSITORY
// ──────────────────────────────────────────────

// MockArchiveRepository is a mock implementation of ArchiveRepository.
type MockArchiveRepository struct {
	mu        sync.RWMutex
	raw       map[string][]*domain.RawRecord
	summaries map[string][]*domain.SummaryRecord

	// Counters for verification
	AppendRawCallCount     int32
	AppendSummaryCallCount int32

	// Error injection
	AppendRawError     error
	AppendSummaryError error

	// AppendSummaryFailures fails that many AppendSummary calls before succeeding.
	AppendSummaryFailures int32
}

// NewMockArchiveRepository creates a new mock archive repository.
func NewMockArchiveRepository() *MockArchiveRepository {
	return &MockArchiveRepository{
		raw:       make(map[string][]*domain.RawRecord),
		summaries: make(map[string][]*domain.SummaryRecord),
	}
}

func (m *MockArchiveRepository) HasRaw(ctx context.Context, day, tripID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.raw[day] {
		if r.TripID == tripID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockArchiveRepository) AppendRaw(ctx context.Context, rec *domain.RawRecord) error {
	atomic.AddInt32(&m.AppendRawCallCount, 1)
	if m.AppendRawError != nil {
		return m.AppendRawError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	m.raw[rec.Day] = append(m.raw[rec.Day], &copy)
	return nil
}

func (m *MockArchiveRepository) HasSummary(ctx context.Context, day, tripID string) (bool, error) {
	_, err := m.GetSummary(ctx, day, tripID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *MockArchiveRepository) AppendSummary(ctx context.Context, rec *domain.SummaryRecord) error {
	atomic.AddInt32(&m.AppendSummaryCallCount, 1)
	if m.AppendSummaryError != nil {
		return m.AppendSummaryError
	}
	if atomic.AddInt32(&m.AppendSummaryFailures, -1) >= 0 {
		return ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	m.summaries[rec.Day] = append(m.summaries[rec.Day], &copy)
	return nil
}

func (m *MockArchiveRepository) GetSummary(ctx context.Context, day, tripID string) (*domain.SummaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.summaries[day] {
		if s.TripID == tripID {
			copy := *s
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockArchiveRepository) ListSummaries(ctx context.Context, day string) ([]*domain.SummaryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.SummaryRecord, 0, len(m.summaries[day]))
	for _, s := range m.summaries[day] {
		copy := *s
		out = append(out, &copy)
	}
	return out, nil
}

// Raw returns the raw records of a day for test assertions.
func (m *MockArchiveRepository) Raw(day string) []*domain.RawRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.RawRecord(nil), m.raw[day]...)
}

// Summaries returns the summary records of a day for test assertions.
func (m *MockArchiveRepository) Summaries(day string) []*domain.SummaryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.SummaryRecord(nil), m.summaries[day]...)
}

// ──────────────────────────────────────────────
// MOCK GRID REPOSITORY
// ──────────────────────────────────────────────

// MockGridRepository is a mock implementation of GridRepository.
type MockGridRepository struct {
	mu        sync.RWMutex
	cells     map[domain.ZoneKind]map[string]*domain.GridCell
	processed map[string]bool

	// Counters for verification
	ApplyCallCount int32

	// Error injection
	ApplyError error
}

// NewMockGridRepository creates a new mock grid repository.
func NewMockGridRepository() *MockGridRepository {
	return &MockGridRepository{
		cells: map[domain.ZoneKind]map[string]*domain.GridCell{
			domain.ZoneKindPickup:  {},
			domain.ZoneKindDropoff: {},
		},
		processed: make(map[string]bool),
	}
}

func (m *MockGridRepository) Apply(ctx context.Context, tripID string, samples []domain.ZoneSample) (bool, error) {
	atomic.AddInt32(&m.ApplyCallCount, 1)
	if m.ApplyError != nil {
		return false, m.ApplyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed[tripID] {
		return false, nil
	}
	for _, s := range samples {
		cell, ok := m.cells[s.Kind][s.Zone]
		if !ok {
			cell = domain.NewGridCell(s.Kind, s.Zone, s.Group)
			m.cells[s.Kind][s.Zone] = cell
		}
		cell.Observe(s)
	}
	m.processed[tripID] = true
	return true, nil
}

// IsProcessed reports whether Apply has recorded the trip.
func (m *MockGridRepository) IsProcessed(tripID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.processed[tripID]
}

func (m *MockGridRepository) Get(ctx context.Context, kind domain.ZoneKind, zone string) (*domain.GridCell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cell, ok := m.cells[kind][zone]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *cell
	return &copy, nil
}

func (m *MockGridRepository) List(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.GridCell, 0, len(m.cells[kind]))
	for _, c := range m.cells[kind] {
		copy := *c
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK GUARDRAIL REPOSITORY
// ──────────────────────────────────────────────

// MockGuardrailRepository is a mock implementation of GuardrailRepository.
type MockGuardrailRepository struct {
	mu      sync.RWMutex
	entries []domain.GuardrailEntry

	AppendCallCount int32
	AppendError     error
}

// NewMockGuardrailRepository creates a new mock guardrail repository.
func NewMockGuardrailRepository() *MockGuardrailRepository {
	return &MockGuardrailRepository{}
}

func (m *MockGuardrailRepository) Append(ctx context.Context, entry domain.GuardrailEntry) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockGuardrailRepository) Entries(ctx context.Context) ([]domain.GuardrailEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.GuardrailEntry(nil), m.entries...), nil
}

// CountAction returns how many entries carry the action.
func (m *MockGuardrailRepository) CountAction(action domain.GuardrailAction) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// ──────────────────────────────────────────────
// MOCK STATE / REPORTS
// ──────────────────────────────────────────────

// MockStateRepository is a mock implementation of StateRepository.
type MockStateRepository struct {
	mu    sync.RWMutex
	state domain.ProcessState

	SaveCallCount int32
	SaveError     error
}

// NewMockStateRepository creates a new mock state repository.
func NewMockStateRepository() *MockStateRepository {
	return &MockStateRepository{}
}

func (m *MockStateRepository) Get(ctx context.Context) (domain.ProcessState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

func (m *MockStateRepository) Save(ctx context.Context, state domain.ProcessState) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// Set replaces the stored state for test setup.
func (m *MockStateRepository) Set(state domain.ProcessState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// MockReportRepository is a mock implementation of ReportRepository.
type MockReportRepository struct {
	mu      sync.RWMutex
	reports map[domain.ZoneKind][]byte

	WriteCallCount int32
}

// NewMockReportRepository creates a new mock report repository.
func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{reports: make(map[domain.ZoneKind][]byte)}
}

func (m *MockReportRepository) Write(ctx context.Context, kind domain.ZoneKind, body []byte) error {
	atomic.AddInt32(&m.WriteCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[kind] = append([]byte(nil), body...)
	return nil
}

func (m *MockReportRepository) Read(ctx context.Context, kind domain.ZoneKind) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.reports[kind]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return body, nil
}

// ──────────────────────────────────────────────
// MOCK SENDER / LOCKER
// ──────────────────────────────────────────────

// MockSender records delivered notifications.
type MockSender struct {
	mu   sync.RWMutex
	sent []domain.Notification

	SendError error
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.SendError
}

// Sent returns the delivered notifications for test assertions.
func (m *MockSender) Sent() []domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Notification(nil), m.sent...)
}

// Last returns the most recent notification.
func (m *MockSender) Last() domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.sent) == 0 {
		return domain.Notification{}
	}
	return m.sent[len(m.sent)-1]
}

// MockLocker is a pipeline lock that counts acquisitions.
type MockLocker struct {
	AcquireCallCount int32
	ReleaseCallCount int32
	AcquireError     error
}

// NewMockLocker creates a new mock locker.
func NewMockLocker() *MockLocker {
	return &MockLocker{}
}

func (m *MockLocker) Acquire(ctx context.Context) (func(), error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return nil, m.AcquireError
	}
	return func() { atomic.AddInt32(&m.ReleaseCallCount, 1) }, nil
}

// Ensure mocks implement interfaces.
var (
	_ repository.UnifiedLogRepository = (*MockUnifiedLog)(nil)
	_ repository.ArchiveRepository    = (*MockArchiveRepository)(nil)
	_ repository.GridRepository       = (*MockGridRepository)(nil)
	_ repository.GuardrailRepository  = (*MockGuardrailRepository)(nil)
	_ repository.StateRepository      = (*MockStateRepository)(nil)
	_ repository.ReportRepository     = (*MockReportRepository)(nil)
)
