package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type mockFeeRepo struct {
	fees        map[string]*models.FeeDetail
	listed      []models.FeeDetail
	total       int
	lastFilter  models.FeeFilter
	created     *models.Fee
	updated     *models.Fee
	payments    []*models.FeePayment
	hasPayments bool
	deletedID   string
	summary     *models.FeeSummary
}

func (m *mockFeeRepo) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeDetail, int, error) {
	m.lastFilter = filter
	return m.listed, m.total, nil
}

func (m *mockFeeRepo) FindByID(ctx context.Context, id string) (*models.FeeDetail, error) {
	fee, ok := m.fees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *fee
	return &cp, nil
}

func (m *mockFeeRepo) Create(ctx context.Context, fee *models.Fee) error {
	fee.ID = "fee-1"
	m.created = fee
	if m.fees == nil {
		m.fees = make(map[string]*models.FeeDetail)
	}
	m.fees[fee.ID] = &models.FeeDetail{Fee: *fee, StudentName: "Alice"}
	return nil
}

func (m *mockFeeRepo) Update(ctx context.Context, fee *models.Fee) error {
	m.updated = fee
	m.fees[fee.ID] = &models.FeeDetail{Fee: *fee, StudentName: "Alice"}
	return nil
}

func (m *mockFeeRepo) RecordPayment(ctx context.Context, payment *models.FeePayment) error {
	m.payments = append(m.payments, payment)
	return nil
}

func (m *mockFeeRepo) HasPayments(ctx context.Context, feeID string) (bool, error) {
	return m.hasPayments, nil
}

func (m *mockFeeRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func (m *mockFeeRepo) Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error) {
	return m.summary, nil
}

func newFeeService(repo *mockFeeRepo, students *mockStudentChecker, resolver *mockLinkResolver) *FeeService {
	if resolver == nil {
		resolver = &mockLinkResolver{}
	}
	engine := policy.NewEngine(resolver, zap.NewNop())
	return NewFeeService(repo, students, engine, validator.New(), zap.NewNop())
}

func feeFixture(amount, paid float64, status models.FeeStatus) *models.FeeDetail {
	return &models.FeeDetail{
		Fee: models.Fee{
			ID:           "fee-1",
			StudentID:    "stu-1",
			Amount:       amount,
			AmountPaid:   paid,
			FeeType:      "tuition",
			DueDate:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Status:       status,
			AcademicYear: "2025-2026",
		},
		StudentName: "Alice",
	}
}

func TestFeeCreate(t *testing.T) {
	repo := &mockFeeRepo{}
	svc := newFeeService(repo, &mockStudentChecker{exists: true}, nil)

	detail, err := svc.Create(context.Background(), CreateFeeRequest{
		StudentID:    "stu-1",
		Amount:       500,
		FeeType:      "tuition",
		DueDate:      "2026-04-01",
		AcademicYear: "2025-2026",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FeePending, detail.Status)
	assert.Equal(t, 500.0, detail.Balance)
	require.NotNil(t, repo.created)
}

func TestFeeCreateUnknownStudent(t *testing.T) {
	svc := newFeeService(&mockFeeRepo{}, &mockStudentChecker{exists: false}, nil)

	_, err := svc.Create(context.Background(), CreateFeeRequest{
		StudentID:    "ghost",
		Amount:       500,
		FeeType:      "tuition",
		DueDate:      "2026-04-01",
		AcademicYear: "2025-2026",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFeePayPartialThenFull(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 0, models.FeePending)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	detail, err := svc.Pay(context.Background(), "fee-1", PayFeeRequest{Amount: 200, PaymentMethod: "cash"})
	require.NoError(t, err)
	assert.Equal(t, models.FeePartial, detail.Status)
	assert.Equal(t, 300.0, detail.Balance)

	detail, err = svc.Pay(context.Background(), "fee-1", PayFeeRequest{Amount: 300, PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, models.FeePaid, detail.Status)
	assert.Zero(t, detail.Balance)
	require.Len(t, repo.payments, 2)
}

func TestFeePayOvershootRejected(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 400, models.FeePartial)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	_, err := svc.Pay(context.Background(), "fee-1", PayFeeRequest{Amount: 200, PaymentMethod: "cash"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestFeePayAlreadyPaid(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 500, models.FeePaid)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	_, err := svc.Pay(context.Background(), "fee-1", PayFeeRequest{Amount: 1, PaymentMethod: "cash"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFeeDeleteProtectedWhenPaymentsExist(t *testing.T) {
	repo := &mockFeeRepo{
		fees:        map[string]*models.FeeDetail{"fee-1": feeFixture(500, 100, models.FeePartial)},
		hasPayments: true,
	}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	err := svc.Delete(context.Background(), "fee-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deletedID)
}

func TestFeeDelete(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 0, models.FeePending)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	require.NoError(t, svc.Delete(context.Background(), "fee-1"))
	assert.Equal(t, "fee-1", repo.deletedID)
}

func TestFeeListScopesParentToChildren(t *testing.T) {
	repo := &mockFeeRepo{}
	resolver := &mockLinkResolver{childIDs: []string{"stu-1", "stu-2"}}
	svc := newFeeService(repo, &mockStudentChecker{}, resolver)

	_, err := svc.List(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleParent}, models.FeeFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-1", "stu-2"}, repo.lastFilter.StudentIDs)
}

func TestFeeListRejectsForeignStudentFilter(t *testing.T) {
	repo := &mockFeeRepo{}
	resolver := &mockLinkResolver{childIDs: []string{"stu-1", "stu-2"}}
	svc := newFeeService(repo, &mockStudentChecker{}, resolver)

	_, err := svc.List(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleParent}, models.FeeFilter{
		StudentIDs: []string{"stu-9"}, Page: 1, PageSize: 20,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestFeeUpdateKeepsOmittedFields(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 0, models.FeePending)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	due := "2026-05-01"
	detail, err := svc.Update(context.Background(), "fee-1", UpdateFeeRequest{DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), detail.DueDate)
	assert.Equal(t, 500.0, detail.Amount)
	assert.Equal(t, "tuition", detail.FeeType)
	assert.Equal(t, "2025-2026", detail.AcademicYear)
}

func TestFeeUpdateAmountBelowPaidRejected(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 300, models.FeePartial)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	amount := 200.0
	_, err := svc.Update(context.Background(), "fee-1", UpdateFeeRequest{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestFeeUpdateAmountRecomputesStatus(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 300, models.FeePartial)}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	amount := 300.0
	detail, err := svc.Update(context.Background(), "fee-1", UpdateFeeRequest{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, models.FeePaid, detail.Status)
	assert.Zero(t, detail.Balance)
}

func TestFeeGetOwnershipCheck(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]*models.FeeDetail{"fee-1": feeFixture(500, 0, models.FeePending)}}
	resolver := &mockLinkResolver{studentID: "stu-2"}
	svc := newFeeService(repo, &mockStudentChecker{}, resolver)

	_, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "fee-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	resolver.studentID = "stu-1"
	detail, err := svc.Get(context.Background(), policy.Principal{UserID: "u1", Role: models.RoleStudent}, "fee-1")
	require.NoError(t, err)
	assert.Equal(t, "fee-1", detail.ID)
}

func TestFeeSummary(t *testing.T) {
	repo := &mockFeeRepo{summary: &models.FeeSummary{
		TotalExpected:  1000,
		TotalCollected: 600,
		TotalPending:   400,
		CollectionRate: 60,
	}}
	svc := newFeeService(repo, &mockStudentChecker{}, nil)

	summary, err := svc.Summary(context.Background(), "2025-2026")
	require.NoError(t, err)
	assert.Equal(t, 60.0, summary.CollectionRate)
}
