package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type feeRepository interface {
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.FeeDetail, error)
	Create(ctx context.Context, fee *models.Fee) error
	Update(ctx context.Context, fee *models.Fee) error
	RecordPayment(ctx context.Context, payment *models.FeePayment) error
	HasPayments(ctx context.Context, feeID string) (bool, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error)
}

type feeStudentChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateFeeRequest raises a receivable against a student.
type CreateFeeRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
	FeeType      string  `json:"fee_type" validate:"required"`
	DueDate      string  `json:"due_date" validate:"required,datetime=2006-01-02"`
	AcademicYear string  `json:"academic_year" validate:"required"`
}

// UpdateFeeRequest updates mutable fee fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateFeeRequest struct {
	Amount       *float64 `json:"amount" validate:"omitempty,gt=0"`
	FeeType      *string  `json:"fee_type"`
	DueDate      *string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	AcademicYear *string  `json:"academic_year"`
}

// PayFeeRequest applies a payment to a fee.
type PayFeeRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"payment_method" validate:"required"`
	TransactionID *string `json:"transaction_id"`
}

// FeeListResult bundles a fee page with pagination metadata.
type FeeListResult struct {
	Fees       []models.FeeDetail
	Pagination models.Pagination
}

// FeeService manages fee records and payments.
type FeeService struct {
	fees      feeRepository
	students  feeStudentChecker
	policy    *policy.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeService constructs a FeeService.
func NewFeeService(fees feeRepository, students feeStudentChecker, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{fees: fees, students: students, policy: policyEngine, validator: validate, logger: logger}
}

// List returns fees visible to the caller.
func (s *FeeService) List(ctx context.Context, p policy.Principal, filter models.FeeFilter) (*FeeListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	studentIDs, empty, err := scopedStudentIDs(scope, filter.StudentIDs)
	if err != nil {
		return nil, err
	}
	if empty {
		return &FeeListResult{
			Fees:       []models.FeeDetail{},
			Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
		}, nil
	}
	filter.StudentIDs = studentIDs

	fees, total, err := s.fees.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	for i := range fees {
		fees[i].Balance = fees[i].Fee.Balance()
	}
	return &FeeListResult{
		Fees:       fees,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single fee after an ownership check.
func (s *FeeService) Get(ctx context.Context, p policy.Principal, id string) (*models.FeeDetail, error) {
	fee, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeStudent(ctx, p, fee.StudentID); err != nil {
		return nil, err
	}
	return fee, nil
}

// Create raises a fee in the pending state.
func (s *FeeService) Create(ctx context.Context, req CreateFeeRequest) (*models.FeeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be in YYYY-MM-DD format")
	}

	exists, err := s.students.ExistsByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	fee := &models.Fee{
		StudentID:    req.StudentID,
		Amount:       req.Amount,
		FeeType:      req.FeeType,
		DueDate:      dueDate,
		Status:       models.FeePending,
		AcademicYear: req.AcademicYear,
	}
	if err := s.fees.Create(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
	}

	s.logger.Info("fee created", zap.String("fee_id", fee.ID), zap.String("student_id", fee.StudentID))
	return s.loadDetail(ctx, fee.ID)
}

// Update applies the supplied fields to a fee. Omitted fields are left
// untouched; the amount cannot drop below what has already been paid,
// and the status is recomputed when the amount changes.
func (s *FeeService) Update(ctx context.Context, id string, req UpdateFeeRequest) (*models.FeeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}

	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	fee := detail.Fee
	if req.Amount != nil {
		if *req.Amount < fee.AmountPaid {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amount cannot be less than the amount already paid")
		}
		fee.Amount = *req.Amount
		switch {
		case fee.Balance() == 0:
			fee.Status = models.FeePaid
		case fee.AmountPaid > 0:
			fee.Status = models.FeePartial
		default:
			fee.Status = models.FeePending
		}
	}
	if req.FeeType != nil {
		fee.FeeType = *req.FeeType
	}
	if req.DueDate != nil {
		dueDate, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be in YYYY-MM-DD format")
		}
		fee.DueDate = dueDate
	}
	if req.AcademicYear != nil {
		fee.AcademicYear = *req.AcademicYear
	}

	if err := s.fees.Update(ctx, &fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
	}
	return s.loadDetail(ctx, id)
}

// Pay applies a payment. Payments that would overshoot the amount due
// are rejected, and the status moves to partial or paid accordingly.
func (s *FeeService) Pay(ctx context.Context, id string, req PayFeeRequest) (*models.FeeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	fee := detail.Fee
	if fee.Status == models.FeePaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee is already fully paid")
	}
	if req.Amount > fee.Balance() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment exceeds the outstanding balance")
	}

	now := time.Now().UTC()
	fee.AmountPaid += req.Amount
	fee.PaymentDate = &now
	fee.PaymentMethod = &req.PaymentMethod
	fee.TransactionID = req.TransactionID
	if fee.Balance() == 0 {
		fee.Status = models.FeePaid
	} else {
		fee.Status = models.FeePartial
	}

	if err := s.fees.Update(ctx, &fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
	}

	payment := &models.FeePayment{
		FeeID:         fee.ID,
		AmountPaid:    req.Amount,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
	}
	if err := s.fees.RecordPayment(ctx, payment); err != nil {
		s.logger.Warn("failed to record payment row", zap.String("fee_id", fee.ID), zap.Error(err))
	}

	s.logger.Info("fee payment applied",
		zap.String("fee_id", fee.ID),
		zap.Float64("amount", req.Amount),
		zap.String("status", string(fee.Status)),
	)
	return s.loadDetail(ctx, id)
}

// Delete removes a fee. Fees with recorded payments are protected.
func (s *FeeService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadDetail(ctx, id); err != nil {
		return err
	}

	hasPayments, err := s.fees.HasPayments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payments")
	}
	if hasPayments {
		return appErrors.Clone(appErrors.ErrConflict, "fee already has recorded payments")
	}

	if err := s.fees.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee")
	}
	return nil
}

// Summary aggregates school-wide collection totals.
func (s *FeeService) Summary(ctx context.Context, academicYear string) (*models.FeeSummary, error) {
	summary, err := s.fees.Summary(ctx, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build fee summary")
	}
	return summary, nil
}

func (s *FeeService) loadDetail(ctx context.Context, id string) (*models.FeeDetail, error) {
	fee, err := s.fees.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	}
	fee.Balance = fee.Fee.Balance()
	return fee, nil
}
