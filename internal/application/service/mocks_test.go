package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingLogger keeps error messages with their key/value pairs
type recordingLogger struct {
	mu     sync.Mutex
	errors []loggedError
}

type loggedError struct {
	msg string
	kv  []interface{}
}

func (l *recordingLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *recordingLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, loggedError{msg: msg, kv: keysAndValues})
}

func (l *recordingLogger) messages(msg string) []loggedError {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []loggedError
	for _, e := range l.errors {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Mock repositories

type mockClaimRepo struct {
	mu     sync.Mutex
	claims map[int64]*entity.Claim
	nextID int64
}

func (m *mockClaimRepo) Create(ctx context.Context, claim *entity.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	claim.ID = m.nextID
	m.claims[claim.ID] = claim.Clone()
	return nil
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[id]; ok {
		return c.Clone(), nil
	}
	return nil, nil
}

func (m *mockClaimRepo) Update(ctx context.Context, claim *entity.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[claim.ID] = claim.Clone()
	return nil
}

func (m *mockClaimRepo) SetAdvisoryNote(ctx context.Context, id int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[id]; ok {
		c.AdvisoryNote = note
	}
	return nil
}

func (m *mockClaimRepo) filter(keep func(*entity.Claim) bool) []*entity.Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Claim
	for _, c := range m.claims {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockClaimRepo) ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error) {
	return m.filter(func(c *entity.Claim) bool { return c.SubmitterID == submitterID }), nil
}

func (m *mockClaimRepo) ListPendingByReviewer(ctx context.Context, reviewerID int64) ([]*entity.Claim, error) {
	return m.filter(func(c *entity.Claim) bool {
		return c.Status == entity.ClaimStatusPending && c.FindVote(reviewerID) != nil
	}), nil
}

func (m *mockClaimRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Claim, error) {
	return m.filter(func(c *entity.Claim) bool { return c.CompanyID == companyID }), nil
}

func (m *mockClaimRepo) ListPendingSince(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Claim, error) {
	out := m.filter(func(c *entity.Claim) bool {
		return c.Status == entity.ClaimStatusPending && lastTouched(c).Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool { return lastTouched(out[i]).Before(lastTouched(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockClaimRepo) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.claims[id]; ok {
		t := at
		c.LastRemindedAt = &t
	}
	return nil
}

func lastTouched(c *entity.Claim) time.Time {
	if c.LastRemindedAt != nil && c.LastRemindedAt.After(c.UpdatedAt) {
		return *c.LastRemindedAt
	}
	return c.UpdatedAt
}

type mockUserRepo struct {
	users  map[int64]*entity.User
	nextID int64
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *entity.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return fmt.Errorf("user %d missing", user.ID)
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockCompanyRepo struct {
	companies map[int64]*entity.Company
	nextID    int64
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *entity.Company) error {
	m.nextID++
	company.ID = m.nextID
	m.companies[company.ID] = company
	return nil
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	return m.companies[id], nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	histories []*entity.ClaimHistory
}

func (m *mockHistoryRepo) Create(ctx context.Context, history *entity.ClaimHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, history)
	return nil
}

func (m *mockHistoryRepo) GetByClaimID(ctx context.Context, claimID int64) ([]*entity.ClaimHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ClaimHistory
	for _, h := range m.histories {
		if h.ClaimID == claimID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Mock collaborators

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyReviewer(ctx context.Context, req *port.ReviewRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockNotifier) NotifySubmitter(ctx context.Context, notice *port.ResolutionNotice) error {
	return m.Called(ctx, notice).Error(0)
}

type mockConverter struct{ mock.Mock }

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, amount, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockAdvisor struct{ mock.Mock }

func (m *mockAdvisor) Advise(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*port.Advisory, error) {
	args := m.Called(ctx, claim, submitter)
	if a, ok := args.Get(0).(*port.Advisory); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockExporter struct{ mock.Mock }

func (m *mockExporter) Export(ctx context.Context, w io.Writer, claims []*entity.Claim, users map[int64]*entity.User) error {
	args := m.Called(ctx, w, claims, users)
	if err := args.Error(0); err != nil {
		return err
	}
	_, err := io.WriteString(w, "xlsx-bytes")
	return err
}

type mockStorage struct{ mock.Mock }

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	return m.Called(ctx, path, content).Error(0)
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	return m.Called(ctx, path).Bool(0)
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/archive/" + relativePath
}

type routerFunc func(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*approval.ChainOverride, error)

func (f routerFunc) Route(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*approval.ChainOverride, error) {
	return f(ctx, claim, submitter)
}

// Directory used by the service tests:
// company 1 (EUR): admin 1, approving manager 2, employee 3 under 2,
// employee 4 under non-approving manager 5.
// company 2 (USD): employee 9.
const (
	adminID         int64 = 1
	managerID       int64 = 2
	employeeID      int64 = 3
	orphanID        int64 = 4
	quietManagerID  int64 = 5
	outsiderID      int64 = 9
	companyCurrency       = "EUR"
)

type fixture struct {
	claims    *mockClaimRepo
	users     *mockUserRepo
	companies *mockCompanyRepo
	history   *mockHistoryRepo
	engine    workflow.Engine
}

func int64Ptr(v int64) *int64 { return &v }

func newFixture() *fixture {
	users := &mockUserRepo{nextID: 100, users: map[int64]*entity.User{
		adminID:        {ID: adminID, CompanyID: 1, Email: "admin@acme.test", Role: entity.RoleAdmin},
		managerID:      {ID: managerID, CompanyID: 1, Email: "boss@acme.test", Role: entity.RoleManager, ManagerID: int64Ptr(adminID), IsManagerApprover: true},
		employeeID:     {ID: employeeID, CompanyID: 1, Email: "emp@acme.test", Role: entity.RoleEmployee, ManagerID: int64Ptr(managerID)},
		orphanID:       {ID: orphanID, CompanyID: 1, Email: "orphan@acme.test", Role: entity.RoleEmployee, ManagerID: int64Ptr(quietManagerID)},
		quietManagerID: {ID: quietManagerID, CompanyID: 1, Email: "quiet@acme.test", Role: entity.RoleManager},
		outsiderID:     {ID: outsiderID, CompanyID: 2, Email: "out@other.test", Role: entity.RoleEmployee},
	}}
	companies := &mockCompanyRepo{nextID: 10, companies: map[int64]*entity.Company{
		1: {ID: 1, Name: "Acme", Currency: companyCurrency},
		2: {ID: 2, Name: "Other", Currency: "USD"},
	}}

	f := &fixture{
		claims:    &mockClaimRepo{claims: make(map[int64]*entity.Claim)},
		users:     users,
		companies: companies,
		history:   &mockHistoryRepo{},
	}
	f.engine = workflow.NewEngine(f.claims, f.history, mockTxManager{}, lock.NewLocalLocker())
	return f
}

func (f *fixture) claimService(opts ...ClaimServiceOption) ClaimService {
	return NewClaimService(f.claims, f.users, f.companies, f.history, f.engine, nopLogger{}, opts...)
}
