package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"goodnoodle/internal/models"
	"goodnoodle/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockChatPlatform struct {
	mock.Mock
}

func (m *MockChatPlatform) AddReaction(ctx context.Context, botToken, channel, timestamp, name string) error {
	args := m.Called(ctx, botToken, channel, timestamp, name)
	return args.Error(0)
}

func (m *MockChatPlatform) UserDisplayName(ctx context.Context, botToken, userID string) (string, error) {
	args := m.Called(ctx, botToken, userID)
	return args.String(0), args.Error(1)
}

func (m *MockChatPlatform) PublishHome(ctx context.Context, botToken, userID string, dashboard *models.Dashboard) error {
	args := m.Called(ctx, botToken, userID, dashboard)
	return args.Error(0)
}

type MockInstallationRepository struct {
	mock.Mock
}

func (m *MockInstallationRepository) Upsert(ctx context.Context, scope models.TenantScope, inst *models.Installation) error {
	args := m.Called(ctx, scope, inst)
	return args.Error(0)
}

func (m *MockInstallationRepository) Get(ctx context.Context, scope models.TenantScope) (*models.Installation, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Installation), args.Error(1)
}

func (m *MockInstallationRepository) Delete(ctx context.Context, scope models.TenantScope) error {
	args := m.Called(ctx, scope)
	return args.Error(0)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetInstallation(ctx context.Context, scope models.TenantScope) (*models.Installation, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Installation), args.Error(1)
}

func (m *MockCacheService) SetInstallation(ctx context.Context, scope models.TenantScope, inst *models.Installation, ttl time.Duration) error {
	args := m.Called(ctx, scope, inst, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteInstallation(ctx context.Context, scope models.TenantScope) error {
	args := m.Called(ctx, scope)
	return args.Error(0)
}

func (m *MockCacheService) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCacheService) Close() error {
	return m.Called().Error(0)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreateBatch(ctx context.Context, entries []*models.LedgerEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockLedgerRepository) SumSent(ctx context.Context, tenantID string, senderID uuid.UUID, period models.QuotaPeriod) (int, error) {
	args := m.Called(ctx, tenantID, senderID, period)
	return args.Int(0), args.Error(1)
}

// fakeLedger behaves like the ledger table: append-only, at most MaxBatchSize rows per call.
type fakeLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
	batches []int
}

func (f *fakeLedger) CreateBatch(_ context.Context, entries []*models.LedgerEntry) error {
	if len(entries) > repositories.MaxBatchSize {
		return repositories.ErrBatchTooLarge
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	f.batches = append(f.batches, len(entries))
	return nil
}

func (f *fakeLedger) SumSent(_ context.Context, tenantID string, senderID uuid.UUID, period models.QuotaPeriod) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.SenderID == senderID && e.Week == period.Week && e.Year == period.Year {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (f *fakeLedger) add(e *models.LedgerEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeLedger) all() []*models.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.LedgerEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// fakeUsers enforces the (tenant_id, slack_user_id) unique constraint.
type fakeUsers struct {
	mu      sync.Mutex
	ledger  *fakeLedger
	byKey   map[string]*models.User
	inserts int
}

func newFakeUsers(ledger *fakeLedger) *fakeUsers {
	return &fakeUsers{ledger: ledger, byKey: make(map[string]*models.User)}
}

func (f *fakeUsers) Insert(_ context.Context, user *models.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := user.TenantID + "/" + user.SlackUserID
	if _, ok := f.byKey[key]; ok {
		return false, nil
	}
	cp := *user
	f.byKey[key] = &cp
	f.inserts++
	return true, nil
}

func (f *fakeUsers) GetBySlackID(_ context.Context, tenantID, slackUserID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byKey[tenantID+"/"+slackUserID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) ListByTenant(_ context.Context, tenantID string) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.byKey {
		if u.TenantID == tenantID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeUsers) ListTenantIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, u := range f.byKey {
		if !seen[u.TenantID] {
			seen[u.TenantID] = true
			ids = append(ids, u.TenantID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeUsers) RecomputeTotals(_ context.Context, tenantID string, ids []uuid.UUID) (int64, error) {
	entries := f.ledger.all()
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.byKey {
		if u.TenantID != tenantID || (ids != nil && !containsID(ids, u.ID)) {
			continue
		}
		u.TokensReceived, u.TokensSent = 0, 0
		for _, e := range entries {
			if e.TenantID != tenantID {
				continue
			}
			if e.RecipientID == u.ID {
				u.TokensReceived += e.Amount
			}
			if e.SenderID == u.ID {
				u.TokensSent += e.Amount
			}
		}
		n++
	}
	return n, nil
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeInstallations is a map-backed installation table.
type fakeInstallations struct {
	mu   sync.Mutex
	rows map[string]*models.Installation
}

func newFakeInstallations() *fakeInstallations {
	return &fakeInstallations{rows: make(map[string]*models.Installation)}
}

func (f *fakeInstallations) Upsert(_ context.Context, scope models.TenantScope, inst *models.Installation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *inst
	f.rows[scope.Key()] = &cp
	return nil
}

func (f *fakeInstallations) Get(_ context.Context, scope models.TenantScope) (*models.Installation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.rows[scope.Key()]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstallations) Delete(_ context.Context, scope models.TenantScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[scope.Key()]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.rows, scope.Key())
	return nil
}
