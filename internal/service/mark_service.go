package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type markRepository interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.MarkDetail, error)
	ExistsForExamStudent(ctx context.Context, examID, studentID string) (bool, error)
	Create(ctx context.Context, mark *models.Mark) error
	Update(ctx context.Context, id string, marksScored float64, remarks *string) error
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.MarkDetail, error)
}

type markExamRepository interface {
	FindByID(ctx context.Context, id string) (*models.ExamDetail, error)
}

type markStudentChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// RecordMarkRequest records one student's score for an exam.
type RecordMarkRequest struct {
	ExamID      string  `json:"exam_id" validate:"required"`
	StudentID   string  `json:"student_id" validate:"required"`
	MarksScored float64 `json:"marks_scored" validate:"min=0"`
	Remarks     *string `json:"remarks"`
}

// BulkMarkEntry is one row of a bulk mark submission.
type BulkMarkEntry struct {
	StudentID   string  `json:"student_id" validate:"required"`
	MarksScored float64 `json:"marks_scored" validate:"min=0"`
	Remarks     *string `json:"remarks"`
}

// BulkMarkRequest records marks for several students in one exam.
type BulkMarkRequest struct {
	ExamID  string          `json:"exam_id" validate:"required"`
	Entries []BulkMarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// BulkMarkError ties a failed entry to its position in the request.
type BulkMarkError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BulkMarkResult reports per-entry outcomes of a bulk submission.
type BulkMarkResult struct {
	Created int             `json:"created"`
	Errors  []BulkMarkError `json:"errors,omitempty"`
}

// UpdateMarkRequest corrects a recorded score.
type UpdateMarkRequest struct {
	MarksScored float64 `json:"marks_scored" validate:"min=0"`
	Remarks     *string `json:"remarks"`
}

// MarkListResult bundles a mark page with pagination metadata.
type MarkListResult struct {
	Marks      []models.MarkDetail
	Pagination models.Pagination
}

// MarkService manages exam scores.
type MarkService struct {
	marks     markRepository
	exams     markExamRepository
	students  markStudentChecker
	policy    *policy.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarkService constructs a MarkService.
func NewMarkService(marks markRepository, exams markExamRepository, students markStudentChecker, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MarkService{marks: marks, exams: exams, students: students, policy: policyEngine, validator: validate, logger: logger}
}

// List returns marks visible to the caller.
func (s *MarkService) List(ctx context.Context, p policy.Principal, filter models.MarkFilter) (*MarkListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	studentIDs, empty, err := scopedStudentIDs(scope, filter.StudentIDs)
	if err != nil {
		return nil, err
	}
	if empty {
		return &MarkListResult{
			Marks:      []models.MarkDetail{},
			Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
		}, nil
	}
	filter.StudentIDs = studentIDs

	marks, total, err := s.marks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	for i := range marks {
		fillPercentage(&marks[i])
	}
	return &MarkListResult{
		Marks:      marks,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single mark after an ownership check.
func (s *MarkService) Get(ctx context.Context, p policy.Principal, id string) (*models.MarkDetail, error) {
	mark, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeStudent(ctx, p, mark.StudentID); err != nil {
		return nil, err
	}
	return mark, nil
}

// Record stores one student's score. Scores above the exam's maximum
// and duplicate (exam, student) pairs are rejected.
func (s *MarkService) Record(ctx context.Context, req RecordMarkRequest) (*models.MarkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}

	exam, err := s.loadExam(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	if err := s.checkEntry(ctx, exam, req.StudentID, req.MarksScored); err != nil {
		return nil, err
	}

	mark := &models.Mark{
		ExamID:      req.ExamID,
		StudentID:   req.StudentID,
		MarksScored: req.MarksScored,
		Remarks:     req.Remarks,
	}
	if err := s.marks.Create(ctx, mark); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mark")
	}
	return s.loadDetail(ctx, mark.ID)
}

// BulkRecord stores marks for several students. Valid entries are
// created and failures are reported per index.
func (s *MarkService) BulkRecord(ctx context.Context, req BulkMarkRequest) (*BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}

	exam, err := s.loadExam(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	result := &BulkMarkResult{}
	for i, entry := range req.Entries {
		if err := s.checkEntry(ctx, exam, entry.StudentID, entry.MarksScored); err != nil {
			result.Errors = append(result.Errors, BulkMarkError{Index: i, Message: errorMessage(err)})
			continue
		}
		mark := &models.Mark{
			ExamID:      req.ExamID,
			StudentID:   entry.StudentID,
			MarksScored: entry.MarksScored,
			Remarks:     entry.Remarks,
		}
		if err := s.marks.Create(ctx, mark); err != nil {
			result.Errors = append(result.Errors, BulkMarkError{Index: i, Message: "failed to create mark"})
			continue
		}
		result.Created++
	}

	s.logger.Info("bulk marks recorded",
		zap.String("exam_id", req.ExamID),
		zap.Int("created", result.Created),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// Update corrects a recorded score, keeping the maximum rule.
func (s *MarkService) Update(ctx context.Context, id string, req UpdateMarkRequest) (*models.MarkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}

	existing, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MarksScored > existing.MaxMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("marks_scored cannot exceed the exam maximum of %g", existing.MaxMarks))
	}

	if err := s.marks.Update(ctx, id, req.MarksScored, req.Remarks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mark")
	}
	return s.loadDetail(ctx, id)
}

// Delete removes a recorded mark.
func (s *MarkService) Delete(ctx context.Context, id string) error {
	if _, err := s.loadDetail(ctx, id); err != nil {
		return err
	}
	if err := s.marks.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete mark")
	}
	return nil
}

// StudentPerformance rolls up a student's marks after an ownership
// check.
func (s *MarkService) StudentPerformance(ctx context.Context, p policy.Principal, studentID string) (*models.StudentPerformance, error) {
	if err := s.policy.AuthorizeStudent(ctx, p, studentID); err != nil {
		return nil, err
	}

	exists, err := s.students.ExistsByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	marks, err := s.marks.ListByStudent(ctx, studentID, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}

	perf := &models.StudentPerformance{StudentID: studentID, Marks: marks}
	for i := range perf.Marks {
		fillPercentage(&perf.Marks[i])
		perf.TotalExams++
		perf.TotalScored += perf.Marks[i].MarksScored
		perf.TotalMax += perf.Marks[i].MaxMarks
	}
	if perf.TotalMax > 0 {
		perf.OverallPercentage = 100 * perf.TotalScored / perf.TotalMax
	}
	return perf, nil
}

func (s *MarkService) loadExam(ctx context.Context, examID string) (*models.ExamDetail, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

func (s *MarkService) checkEntry(ctx context.Context, exam *models.ExamDetail, studentID string, marksScored float64) error {
	if marksScored > exam.MaxMarks {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("marks_scored cannot exceed the exam maximum of %g", exam.MaxMarks))
	}

	exists, err := s.students.ExistsByID(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	dup, err := s.marks.ExistsForExamStudent(ctx, exam.ID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing mark")
	}
	if dup {
		return appErrors.Clone(appErrors.ErrConflict, "marks already recorded for this student and exam")
	}
	return nil
}

func (s *MarkService) loadDetail(ctx context.Context, id string) (*models.MarkDetail, error) {
	mark, err := s.marks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "mark not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mark")
	}
	fillPercentage(mark)
	return mark, nil
}

func fillPercentage(mark *models.MarkDetail) {
	if mark.MaxMarks > 0 {
		mark.Percentage = 100 * mark.MarksScored / mark.MaxMarks
	}
}

func errorMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
