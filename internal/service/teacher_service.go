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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.TeacherDetail, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id string) error
}

type teacherUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// CreateTeacherRequest provisions a teacher profile and login account.
type CreateTeacherRequest struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required,min=6"`
	Phone           *string `json:"phone"`
	SubjectID       *string `json:"subject_id"`
	Qualification   *string `json:"qualification"`
	ExperienceYears *int    `json:"experience_years" validate:"omitempty,min=0"`
}

// UpdateTeacherRequest updates mutable teacher fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateTeacherRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Phone           *string `json:"phone"`
	SubjectID       *string `json:"subject_id"`
	Qualification   *string `json:"qualification"`
	ExperienceYears *int    `json:"experience_years" validate:"omitempty,min=0"`
}

// TeacherListResult bundles a teacher page with pagination metadata.
type TeacherListResult struct {
	Teachers   []models.TeacherDetail
	Pagination models.Pagination
}

// TeacherService manages teacher profiles and their login accounts.
type TeacherService struct {
	teachers  teacherRepository
	users     teacherUserRepository
	notifier  welcomeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(teachers teacherRepository, users teacherUserRepository, notifier welcomeNotifier, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TeacherService{teachers: teachers, users: users, notifier: notifier, validator: validate, logger: logger}
}

// List returns teachers matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) (*TeacherListResult, error) {
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return &TeacherListResult{
		Teachers:   teachers,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single teacher.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherDetail, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create provisions a teacher profile and an active login account.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	taken, err := s.teachers.EmailExists(ctx, req.Email, "")
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

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleTeacher,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	teacher := &models.Teacher{
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		SubjectID:       req.SubjectID,
		Qualification:   req.Qualification,
		ExperienceYears: req.ExperienceYears,
		UserID:          &user.ID,
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.Warn("failed to clean up orphan account", zap.String("user_id", user.ID), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.notifier.SendWelcome(req.Email, string(models.RoleTeacher), req.Password)

	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return s.Get(ctx, teacher.ID)
}

// Update applies the supplied fields to a teacher. Omitted fields are
// left untouched.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	existing, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	teacher := existing.Teacher
	if req.Name != nil {
		teacher.Name = *req.Name
	}
	if req.Email != nil {
		taken, err := s.teachers.EmailExists(ctx, *req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		teacher.Email = *req.Email
	}
	if req.Phone != nil {
		teacher.Phone = req.Phone
	}
	if req.SubjectID != nil {
		teacher.SubjectID = req.SubjectID
	}
	if req.Qualification != nil {
		teacher.Qualification = req.Qualification
	}
	if req.ExperienceYears != nil {
		teacher.ExperienceYears = req.ExperienceYears
	}

	if err := s.teachers.Update(ctx, &teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return s.Get(ctx, id)
}

// Delete removes a teacher and its login account.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.teachers.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}

	if teacher.UserID != nil {
		if err := s.users.Delete(ctx, *teacher.UserID); err != nil {
			s.logger.Warn("failed to delete teacher account", zap.String("user_id", *teacher.UserID), zap.Error(err))
		}
	}

	s.logger.Info("teacher deleted", zap.String("teacher_id", id))
	return nil
}
