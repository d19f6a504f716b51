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

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, a *models.Announcement) error
	Update(ctx context.Context, a *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type announcementUserRepository interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

type announcementBroadcaster interface {
	BroadcastAnnouncement(recipients []string, title, content string)
}

// CreateAnnouncementRequest publishes a notice.
type CreateAnnouncementRequest struct {
	Title          string  `json:"title" validate:"required"`
	Message        string  `json:"message" validate:"required"`
	TargetAudience string  `json:"target_audience" validate:"required"`
	ClassID        *string `json:"class_id"`
	IsUrgent       bool    `json:"is_urgent"`
}

// UpdateAnnouncementRequest updates mutable notice fields. Every field
// is optional; fields left out of the payload keep their stored value.
type UpdateAnnouncementRequest struct {
	Title          *string `json:"title"`
	Message        *string `json:"message"`
	TargetAudience *string `json:"target_audience"`
	ClassID        *string `json:"class_id"`
	IsUrgent       *bool   `json:"is_urgent"`
}

// AnnouncementListResult bundles an announcement page with pagination.
type AnnouncementListResult struct {
	Announcements []models.Announcement
	Pagination    models.Pagination
}

// AnnouncementService manages notices and their audience scoping.
type AnnouncementService struct {
	announcements announcementRepository
	users         announcementUserRepository
	broadcaster   announcementBroadcaster
	policy        *policy.Engine
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAnnouncementService constructs an AnnouncementService.
func NewAnnouncementService(announcements announcementRepository, users announcementUserRepository, broadcaster announcementBroadcaster, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AnnouncementService{
		announcements: announcements,
		users:         users,
		broadcaster:   broadcaster,
		policy:        policyEngine,
		validator:     validate,
		logger:        logger,
	}
}

// audiencesFor maps a caller role to the audience tags it may read.
func audiencesFor(role models.UserRole) []string {
	switch role {
	case models.RoleStudent:
		return []string{models.AudienceAll, models.AudienceStudents}
	case models.RoleTeacher:
		return []string{models.AudienceAll, models.AudienceTeachers}
	case models.RoleParent:
		return []string{models.AudienceAll, models.AudienceParents}
	default:
		return nil
	}
}

// List returns announcements visible to the caller's role.
func (s *AnnouncementService) List(ctx context.Context, p policy.Principal, filter models.AnnouncementFilter) (*AnnouncementListResult, error) {
	if !p.Role.Privileged() {
		filter.Audiences = audiencesFor(p.Role)
	}

	announcements, total, err := s.announcements.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return &AnnouncementListResult{
		Announcements: announcements,
		Pagination:    models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single announcement. Non-privileged callers only see
// notices addressed to their role.
func (s *AnnouncementService) Get(ctx context.Context, p policy.Principal, id string) (*models.Announcement, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Role.Privileged() {
		visible := false
		for _, aud := range audiencesFor(p.Role) {
			if a.TargetAudience == aud {
				visible = true
				break
			}
		}
		if !visible {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
	}
	return a, nil
}

// Create publishes a notice. Teachers author as themselves; urgent
// notices are emailed to the target audience.
func (s *AnnouncementService) Create(ctx context.Context, p policy.Principal, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if !models.ValidAudience(req.TargetAudience) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target_audience must be one of all, students, teachers, parents")
	}

	a := &models.Announcement{
		Title:          req.Title,
		Message:        req.Message,
		Date:           time.Now().UTC(),
		TargetAudience: req.TargetAudience,
		ClassID:        req.ClassID,
		IsUrgent:       req.IsUrgent,
	}

	if p.Role == models.RoleTeacher {
		teacherID, err := s.policy.TeacherID(ctx, p)
		if err != nil {
			return nil, err
		}
		a.TeacherID = &teacherID
	}

	if err := s.announcements.Create(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	if a.IsUrgent {
		s.broadcastUrgent(ctx, a)
	}

	s.logger.Info("announcement published",
		zap.String("announcement_id", a.ID),
		zap.String("audience", a.TargetAudience),
		zap.Bool("urgent", a.IsUrgent),
	)
	return a, nil
}

// Update applies the supplied fields to a notice after an author
// check. Omitted fields are left untouched.
func (s *AnnouncementService) Update(ctx context.Context, p policy.Principal, id string, req UpdateAnnouncementRequest) (*models.Announcement, error) {
	if req.TargetAudience != nil && !models.ValidAudience(*req.TargetAudience) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target_audience must be one of all, students, teachers, parents")
	}

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, a.TeacherID); err != nil {
		return nil, err
	}

	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Message != nil {
		a.Message = *req.Message
	}
	if req.TargetAudience != nil {
		a.TargetAudience = *req.TargetAudience
	}
	if req.ClassID != nil {
		a.ClassID = req.ClassID
	}
	if req.IsUrgent != nil {
		a.IsUrgent = *req.IsUrgent
	}

	if err := s.announcements.Update(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return a, nil
}

// Delete removes a notice after an author check.
func (s *AnnouncementService) Delete(ctx context.Context, p policy.Principal, id string) error {
	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, a.TeacherID); err != nil {
		return err
	}
	if err := s.announcements.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.Announcement, error) {
	a, err := s.announcements.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return a, nil
}

func (s *AnnouncementService) broadcastUrgent(ctx context.Context, a *models.Announcement) {
	var roles []models.UserRole
	switch a.TargetAudience {
	case models.AudienceStudents:
		roles = []models.UserRole{models.RoleStudent}
	case models.AudienceTeachers:
		roles = []models.UserRole{models.RoleTeacher}
	case models.AudienceParents:
		roles = []models.UserRole{models.RoleParent}
	default:
		roles = []models.UserRole{models.RoleStudent, models.RoleTeacher, models.RoleParent}
	}

	var recipients []string
	for _, role := range roles {
		users, err := s.users.ListByRole(ctx, role)
		if err != nil {
			s.logger.Warn("failed to resolve broadcast recipients", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		for _, u := range users {
			if u.IsActive {
				recipients = append(recipients, u.Email)
			}
		}
	}
	s.broadcaster.BroadcastAnnouncement(recipients, a.Title, a.Message)
}
