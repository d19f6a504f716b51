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

type adminUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

// CreateAdminRequest provisions an admin account.
type CreateAdminRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// AdminService manages admin accounts. Only the master role reaches it.
type AdminService struct {
	users     adminUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(users adminUserRepository, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AdminService{users: users, validator: validate, logger: logger}
}

// CreateAdmin provisions a new admin account. The account starts
// inactive and cannot log in until approved.
func (s *AdminService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admin payload")
	}

	exists, err := s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admin")
	}

	s.logger.Info("admin account created", zap.String("user_id", user.ID))
	return &models.UserInfo{ID: user.ID, Email: user.Email, Role: user.Role, IsActive: user.IsActive}, nil
}

// ListAdmins returns all admin accounts.
func (s *AdminService) ListAdmins(ctx context.Context) ([]models.UserInfo, error) {
	users, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admins")
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, models.UserInfo{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive})
	}
	return infos, nil
}

// ApproveAdmin activates a pending admin account.
func (s *AdminService) ApproveAdmin(ctx context.Context, id string) error {
	return s.setAdminActive(ctx, id, true)
}

// DeactivateAdmin suspends an admin account.
func (s *AdminService) DeactivateAdmin(ctx context.Context, id string) error {
	return s.setAdminActive(ctx, id, false)
}

// DeleteAdmin removes an admin account permanently.
func (s *AdminService) DeleteAdmin(ctx context.Context, id string) error {
	if _, err := s.loadAdmin(ctx, id); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete admin")
	}
	s.logger.Info("admin account deleted", zap.String("user_id", id))
	return nil
}

func (s *AdminService) setAdminActive(ctx context.Context, id string, active bool) error {
	if _, err := s.loadAdmin(ctx, id); err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admin status")
	}
	s.logger.Info("admin status changed", zap.String("user_id", id), zap.Bool("active", active))
	return nil
}

func (s *AdminService) loadAdmin(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admin not found")
	}
	return user, nil
}
