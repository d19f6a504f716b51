package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter, allowedIDs []string) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type studentClassRepository interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

type welcomeNotifier interface {
	SendWelcome(email, role, password string)
}

// CreateStudentRequest provisions a student profile and, when an email
// is given, a login account.
type CreateStudentRequest struct {
	Name         string  `json:"name" validate:"required"`
	DOB          string  `json:"dob" validate:"required,datetime=2006-01-02"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	GuardianName *string `json:"guardian_name"`
	ClassID      *string `json:"class_id"`
}

// UpdateStudentRequest updates mutable student fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateStudentRequest struct {
	Name         *string `json:"name"`
	DOB          *string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	GuardianName *string `json:"guardian_name"`
	ClassID      *string `json:"class_id"`
}

// StudentListResult bundles a student page with pagination metadata.
type StudentListResult struct {
	Students   []models.StudentDetail
	Pagination models.Pagination
}

// StudentService manages student profiles and their login accounts.
type StudentService struct {
	students  studentRepository
	users     studentUserRepository
	classes   studentClassRepository
	policy    *policy.Engine
	notifier  welcomeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(
	students studentRepository,
	users studentUserRepository,
	classes studentClassRepository,
	policyEngine *policy.Engine,
	notifier welcomeNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{
		students:  students,
		users:     users,
		classes:   classes,
		policy:    policyEngine,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// List returns students visible to the caller. Students see only their
// own record and parents only their children.
func (s *StudentService) List(ctx context.Context, p policy.Principal, filter models.StudentFilter) (*StudentListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}

	var allowedIDs []string
	if !scope.Unrestricted {
		if len(scope.StudentIDs) == 0 {
			return &StudentListResult{
				Students:   []models.StudentDetail{},
				Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
			}, nil
		}
		allowedIDs = scope.StudentIDs
	}

	students, total, err := s.students.List(ctx, filter, allowedIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return &StudentListResult{
		Students:   students,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single student after an ownership check.
func (s *StudentService) Get(ctx context.Context, p policy.Principal, id string) (*models.StudentDetail, error) {
	if err := s.policy.AuthorizeStudent(ctx, p, id); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create provisions a student profile. When an email is supplied, a
// login account is created too with the date of birth as the initial
// password and a welcome email is queued.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dob must be in YYYY-MM-DD format")
	}

	if req.ClassID != nil {
		if err := s.requireClass(ctx, *req.ClassID); err != nil {
			return nil, err
		}
	}

	student := &models.Student{
		Name:         req.Name,
		DOB:          dob,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		GuardianName: req.GuardianName,
		ClassID:      req.ClassID,
	}

	if req.Email != nil {
		userID, err := s.provisionAccount(ctx, *req.Email, req.DOB)
		if err != nil {
			return nil, err
		}
		student.UserID = &userID
	}

	if err := s.students.Create(ctx, student); err != nil {
		if student.UserID != nil {
			if delErr := s.users.Delete(ctx, *student.UserID); delErr != nil {
				s.logger.Warn("failed to clean up orphan account", zap.String("user_id", *student.UserID), zap.Error(delErr))
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if req.Email != nil {
		s.notifier.SendWelcome(*req.Email, string(models.RoleStudent), req.DOB)
	}

	s.logger.Info("student created", zap.String("student_id", student.ID))
	return s.loadDetail(ctx, student.ID)
}

// Update applies the supplied fields to a student. Omitted fields are
// left untouched.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	existing, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student := existing.Student
	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.DOB != nil {
		dob, err := time.Parse("2006-01-02", *req.DOB)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dob must be in YYYY-MM-DD format")
		}
		student.DOB = dob
	}
	if req.Phone != nil {
		student.Phone = req.Phone
	}
	if req.Address != nil {
		student.Address = req.Address
	}
	if req.GuardianName != nil {
		student.GuardianName = req.GuardianName
	}
	if req.ClassID != nil {
		if err := s.requireClass(ctx, *req.ClassID); err != nil {
			return nil, err
		}
		student.ClassID = req.ClassID
	}

	if err := s.students.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.loadDetail(ctx, id)
}

// Delete removes a student and its login account.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.students.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}

	if student.UserID != nil {
		if err := s.users.Delete(ctx, *student.UserID); err != nil {
			s.logger.Warn("failed to delete student account", zap.String("user_id", *student.UserID), zap.Error(err))
		}
	}

	s.logger.Info("student deleted", zap.String("student_id", id))
	return nil
}

func (s *StudentService) provisionAccount(ctx context.Context, email, initialPassword string) (string, error) {
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return "", appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(initialPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleStudent,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	return user.ID, nil
}

func (s *StudentService) requireClass(ctx context.Context, classID string) error {
	exists, err := s.classes.ExistsByID(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return nil
}

func (s *StudentService) loadDetail(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}
