package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type parentRepository interface {
	List(ctx context.Context, page, pageSize int) ([]models.Parent, int, error)
	FindByID(ctx context.Context, id string) (*models.Parent, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, parent *models.Parent) error
	Update(ctx context.Context, parent *models.Parent) error
	Delete(ctx context.Context, id string) error
	LinkExists(ctx context.Context, parentID, studentID string) (bool, error)
	CreateLink(ctx context.Context, link *models.ParentStudentLink) error
	DeleteLink(ctx context.Context, parentID, studentID string) (int64, error)
	ListChildren(ctx context.Context, parentID string) ([]models.StudentDetail, error)
}

type parentUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type parentStudentChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateParentRequest provisions a parent profile and login account.
type CreateParentRequest struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      string  `json:"phone" validate:"required,min=6"`
	Occupation *string `json:"occupation"`
	StudentIDs []string `json:"student_ids"`
}

// UpdateParentRequest updates mutable parent fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateParentRequest struct {
	Name       *string `json:"name"`
	Phone      *string `json:"phone" validate:"omitempty,min=6"`
	Occupation *string `json:"occupation"`
}

// LinkStudentRequest attaches a student to a parent.
type LinkStudentRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	Relationship string `json:"relationship"`
}

// ParentListResult bundles a parent page with pagination metadata.
type ParentListResult struct {
	Parents    []models.Parent
	Pagination models.Pagination
}

// ParentService manages guardian profiles, their accounts and links to
// students.
type ParentService struct {
	parents   parentRepository
	users     parentUserRepository
	students  parentStudentChecker
	notifier  welcomeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewParentService constructs a ParentService.
func NewParentService(parents parentRepository, users parentUserRepository, students parentStudentChecker, notifier welcomeNotifier, validate *validator.Validate, logger *zap.Logger) *ParentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ParentService{parents: parents, users: users, students: students, notifier: notifier, validator: validate, logger: logger}
}

// List returns a page of parents.
func (s *ParentService) List(ctx context.Context, page, pageSize int) (*ParentListResult, error) {
	parents, total, err := s.parents.List(ctx, page, pageSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list parents")
	}
	return &ParentListResult{
		Parents:    parents,
		Pagination: models.Pagination{Page: page, PageSize: pageSize, TotalCount: total},
	}, nil
}

// Get returns a parent with its linked students.
func (s *ParentService) Get(ctx context.Context, id string) (*models.ParentDetail, error) {
	parent, err := s.parents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}

	children, err := s.parents.ListChildren(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load children")
	}
	return &models.ParentDetail{Parent: *parent, Students: children}, nil
}

// Create provisions a parent profile and a login account using the
// phone number as the initial password. Optional student links are
// created in the same call.
func (s *ParentService) Create(ctx context.Context, req CreateParentRequest) (*models.ParentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid parent payload")
	}

	taken, err := s.parents.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if !taken {
		taken, err = s.users.EmailExists(ctx, req.Email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	for _, studentID := range req.StudentIDs {
		exists, err := s.students.ExistsByID(ctx, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Phone), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleParent,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	parent := &models.Parent{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Occupation: req.Occupation,
		UserID:     &user.ID,
	}
	if err := s.parents.Create(ctx, parent); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.Warn("failed to clean up orphan account", zap.String("user_id", user.ID), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create parent")
	}

	for _, studentID := range req.StudentIDs {
		link := &models.ParentStudentLink{ParentID: parent.ID, StudentID: studentID}
		if err := s.parents.CreateLink(ctx, link); err != nil {
			s.logger.Warn("failed to link student", zap.String("parent_id", parent.ID), zap.String("student_id", studentID), zap.Error(err))
		}
	}

	s.notifier.SendWelcome(req.Email, string(models.RoleParent), req.Phone)

	s.logger.Info("parent created", zap.String("parent_id", parent.ID))
	return s.Get(ctx, parent.ID)
}

// Update applies the supplied fields to a parent. Omitted fields are
// left untouched. Email is immutable as it doubles as the login
// identifier.
func (s *ParentService) Update(ctx context.Context, id string, req UpdateParentRequest) (*models.ParentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid parent payload")
	}

	parent, err := s.parents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}

	if req.Name != nil {
		parent.Name = *req.Name
	}
	if req.Phone != nil {
		parent.Phone = *req.Phone
	}
	if req.Occupation != nil {
		parent.Occupation = req.Occupation
	}

	if err := s.parents.Update(ctx, parent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update parent")
	}
	return s.Get(ctx, id)
}

// Delete removes a parent, its student links and its login account.
func (s *ParentService) Delete(ctx context.Context, id string) error {
	parent, err := s.parents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}

	if err := s.parents.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete parent")
	}

	if parent.UserID != nil {
		if err := s.users.Delete(ctx, *parent.UserID); err != nil {
			s.logger.Warn("failed to delete parent account", zap.String("user_id", *parent.UserID), zap.Error(err))
		}
	}

	s.logger.Info("parent deleted", zap.String("parent_id", id))
	return nil
}

// LinkStudent attaches a student to a parent.
func (s *ParentService) LinkStudent(ctx context.Context, parentID string, req LinkStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	if _, err := s.parents.FindByID(ctx, parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "parent not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent")
	}

	exists, err := s.students.ExistsByID(ctx, req.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	linked, err := s.parents.LinkExists(ctx, parentID, req.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check link")
	}
	if linked {
		return appErrors.Clone(appErrors.ErrConflict, "student is already linked to this parent")
	}

	link := &models.ParentStudentLink{
		ParentID:     parentID,
		StudentID:    req.StudentID,
		Relationship: req.Relationship,
	}
	if err := s.parents.CreateLink(ctx, link); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link student")
	}
	return nil
}

// UnlinkStudent detaches a student from a parent.
func (s *ParentService) UnlinkStudent(ctx context.Context, parentID, studentID string) error {
	affected, err := s.parents.DeleteLink(ctx, parentID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink student")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "link not found")
	}
	return nil
}
