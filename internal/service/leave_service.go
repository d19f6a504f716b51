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

type leaveRepository interface {
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequestDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.LeaveRequestDetail, error)
	Create(ctx context.Context, req *models.LeaveRequest) error
	UpdateStatus(ctx context.Context, id string, status models.LeaveStatus, adminRemarks *string) error
	Delete(ctx context.Context, id string) error
}

type leaveStudentChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateLeaveRequest raises an absence request for a student.
type CreateLeaveRequest struct {
	StudentID string `json:"student_id"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required"`
}

// ReviewLeaveRequest moves a pending request to a terminal status.
type ReviewLeaveRequest struct {
	Status       string  `json:"status" validate:"required"`
	AdminRemarks *string `json:"admin_remarks"`
}

// LeaveListResult bundles a leave page with pagination metadata.
type LeaveListResult struct {
	Requests   []models.LeaveRequestDetail
	Pagination models.Pagination
}

// LeaveService manages student absence requests.
type LeaveService struct {
	leaves    leaveRepository
	students  leaveStudentChecker
	policy    *policy.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(leaves leaveRepository, students leaveStudentChecker, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LeaveService{leaves: leaves, students: students, policy: policyEngine, validator: validate, logger: logger}
}

// List returns leave requests visible to the caller.
func (s *LeaveService) List(ctx context.Context, p policy.Principal, filter models.LeaveFilter) (*LeaveListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	studentIDs, empty, err := scopedStudentIDs(scope, filter.StudentIDs)
	if err != nil {
		return nil, err
	}
	if empty {
		return &LeaveListResult{
			Requests:   []models.LeaveRequestDetail{},
			Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
		}, nil
	}
	filter.StudentIDs = studentIDs

	requests, total, err := s.leaves.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return &LeaveListResult{
		Requests:   requests,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single leave request after an ownership check.
func (s *LeaveService) Get(ctx context.Context, p policy.Principal, id string) (*models.LeaveRequestDetail, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeStudent(ctx, p, req.StudentID); err != nil {
		return nil, err
	}
	return req, nil
}

// Create raises a leave request. Students and parents may only file
// for students within their own scope; privileged callers must name
// the student explicitly.
func (s *LeaveService) Create(ctx context.Context, p policy.Principal, req CreateLeaveRequest) (*models.LeaveRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be in YYYY-MM-DD format")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be in YYYY-MM-DD format")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date cannot be before start_date")
	}

	studentID, err := s.resolveStudent(ctx, p, req.StudentID)
	if err != nil {
		return nil, err
	}

	exists, err := s.students.ExistsByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	leave := &models.LeaveRequest{
		StudentID: studentID,
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
		Status:    models.LeavePending,
	}
	if err := s.leaves.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}

	s.logger.Info("leave request filed", zap.String("leave_id", leave.ID), zap.String("student_id", studentID))
	return s.load(ctx, leave.ID)
}

// Review approves or rejects a pending request. Terminal requests
// cannot be re-reviewed.
func (s *LeaveService) Review(ctx context.Context, id string, req ReviewLeaveRequest) (*models.LeaveRequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	status := models.LeaveStatus(req.Status)
	if status != models.LeaveApproved && status != models.LeaveRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}

	leave, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if leave.Status != models.LeavePending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "leave request has already been reviewed")
	}

	if err := s.leaves.UpdateStatus(ctx, id, status, req.AdminRemarks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update leave request")
	}

	s.logger.Info("leave request reviewed", zap.String("leave_id", id), zap.String("status", string(status)))
	return s.load(ctx, id)
}

// Delete removes a pending leave request after an ownership check.
func (s *LeaveService) Delete(ctx context.Context, p policy.Principal, id string) error {
	leave, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.AuthorizeStudent(ctx, p, leave.StudentID); err != nil {
		return err
	}
	if leave.Status != models.LeavePending && !p.Role.Privileged() {
		return appErrors.Clone(appErrors.ErrConflict, "only pending leave requests can be withdrawn")
	}
	if err := s.leaves.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete leave request")
	}
	return nil
}

func (s *LeaveService) resolveStudent(ctx context.Context, p policy.Principal, requested string) (string, error) {
	if p.Role.Privileged() || p.Role == models.RoleTeacher {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
		}
		return requested, nil
	}

	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return "", err
	}
	if len(scope.StudentIDs) == 0 {
		return "", appErrors.Clone(appErrors.ErrForbidden, "no student profile linked to this account")
	}
	if requested == "" {
		if len(scope.StudentIDs) == 1 {
			return scope.StudentIDs[0], nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if !scope.Contains(requested) {
		return "", appErrors.Clone(appErrors.ErrForbidden, "not allowed to file leave for this student")
	}
	return requested, nil
}

func (s *LeaveService) load(ctx context.Context, id string) (*models.LeaveRequestDetail, error) {
	leave, err := s.leaves.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	return leave, nil
}
