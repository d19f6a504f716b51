package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type examRepository interface {
	List(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ExamDetail, error)
	HasMarks(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
}

type examClassChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

type examSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// CreateExamRequest schedules an exam for a class and subject.
type CreateExamRequest struct {
	ClassID         string  `json:"class_id" validate:"required"`
	SubjectID       string  `json:"subject_id" validate:"required"`
	ExamName        string  `json:"exam_name" validate:"required"`
	Date            string  `json:"date" validate:"required,datetime=2006-01-02"`
	MaxMarks        float64 `json:"max_marks" validate:"required,gt=0"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gt=0"`
}

// UpdateExamRequest updates mutable exam fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateExamRequest struct {
	ClassID         *string  `json:"class_id"`
	SubjectID       *string  `json:"subject_id"`
	ExamName        *string  `json:"exam_name"`
	Date            *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	MaxMarks        *float64 `json:"max_marks" validate:"omitempty,gt=0"`
	DurationMinutes *int     `json:"duration_minutes" validate:"omitempty,gt=0"`
}

// ExamListResult bundles an exam page with pagination metadata.
type ExamListResult struct {
	Exams      []models.ExamDetail
	Pagination models.Pagination
}

// ExamService manages exam schedules.
type ExamService struct {
	exams     examRepository
	classes   examClassChecker
	subjects  examSubjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(exams examRepository, classes examClassChecker, subjects examSubjectRepository, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{exams: exams, classes: classes, subjects: subjects, validator: validate, logger: logger}
}

// List returns exams matching the filter.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) (*ExamListResult, error) {
	exams, total, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return &ExamListResult{
		Exams:      exams,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single exam.
func (s *ExamService) Get(ctx context.Context, id string) (*models.ExamDetail, error) {
	exam, err := s.exams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Create schedules an exam. The subject must belong to the class.
func (s *ExamService) Create(ctx context.Context, req CreateExamRequest) (*models.ExamDetail, error) {
	exam, err := s.buildExam(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	s.logger.Info("exam created", zap.String("exam_id", exam.ID), zap.String("class_id", exam.ClassID))
	return s.Get(ctx, exam.ID)
}

// Update applies the supplied fields to an exam. Omitted fields are
// left untouched; a changed class or subject is re-checked for the
// pairing rule.
func (s *ExamService) Update(ctx context.Context, id string, req UpdateExamRequest) (*models.ExamDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exam := existing.Exam
	if req.ClassID != nil {
		exam.ClassID = *req.ClassID
	}
	if req.SubjectID != nil {
		exam.SubjectID = *req.SubjectID
	}
	if req.ExamName != nil {
		exam.ExamName = *req.ExamName
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be in YYYY-MM-DD format")
		}
		exam.Date = date
	}
	if req.MaxMarks != nil {
		exam.MaxMarks = *req.MaxMarks
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = req.DurationMinutes
	}

	if req.ClassID != nil || req.SubjectID != nil {
		if err := s.checkClassSubject(ctx, exam.ClassID, exam.SubjectID); err != nil {
			return nil, err
		}
	}

	if err := s.exams.Update(ctx, &exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}
	return s.Get(ctx, id)
}

// Delete removes an exam. Exams with recorded marks are protected.
func (s *ExamService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	hasMarks, err := s.exams.HasMarks(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check marks")
	}
	if hasMarks {
		return appErrors.Clone(appErrors.ErrConflict, "exam already has recorded marks")
	}

	if err := s.exams.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}

	s.logger.Info("exam deleted", zap.String("exam_id", id))
	return nil
}

func (s *ExamService) buildExam(ctx context.Context, req CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be in YYYY-MM-DD format")
	}

	if err := s.checkClassSubject(ctx, req.ClassID, req.SubjectID); err != nil {
		return nil, err
	}

	return &models.Exam{
		ClassID:         req.ClassID,
		SubjectID:       req.SubjectID,
		ExamName:        req.ExamName,
		Date:            date,
		MaxMarks:        req.MaxMarks,
		DurationMinutes: req.DurationMinutes,
	}, nil
}

func (s *ExamService) checkClassSubject(ctx context.Context, classID, subjectID string) error {
	exists, err := s.classes.ExistsByID(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.ClassID != classID {
		return appErrors.Clone(appErrors.ErrValidation, "subject does not belong to this class")
	}
	return nil
}
