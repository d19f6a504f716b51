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

type homeworkRepository interface {
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.HomeworkDetail, error)
	Create(ctx context.Context, hw *models.Homework) error
	Update(ctx context.Context, hw *models.Homework) error
	Delete(ctx context.Context, id string) error
	CreateSubmission(ctx context.Context, sub *models.HomeworkSubmission) error
	SubmissionExists(ctx context.Context, homeworkID, studentID string) (bool, error)
	FindSubmission(ctx context.Context, id string) (*models.HomeworkSubmission, error)
	ListSubmissions(ctx context.Context, homeworkID string) ([]models.HomeworkSubmission, error)
	GradeSubmission(ctx context.Context, id string, grade string, feedback *string) error
}

type homeworkStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type homeworkClassChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

type homeworkSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type homeworkTeacherChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateHomeworkRequest issues an assignment to a class. TeacherID is
// honoured only for privileged callers; teachers always author as
// themselves.
type CreateHomeworkRequest struct {
	ClassID     string   `json:"class_id" validate:"required"`
	SubjectID   string   `json:"subject_id" validate:"required"`
	TeacherID   string   `json:"teacher_id"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	DueDate     string   `json:"due_date" validate:"required,datetime=2006-01-02"`
	Attachments []string `json:"attachments"`
}

// UpdateHomeworkRequest updates mutable assignment fields. Every field
// is optional; fields left out of the payload keep their stored value.
type UpdateHomeworkRequest struct {
	ClassID     *string  `json:"class_id"`
	SubjectID   *string  `json:"subject_id"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	DueDate     *string  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Attachments []string `json:"attachments"`
}

// SubmitHomeworkRequest files a student's response.
type SubmitHomeworkRequest struct {
	FileLink    *string `json:"file_link"`
	TextContent *string `json:"text_content"`
}

// GradeSubmissionRequest grades a filed submission.
type GradeSubmissionRequest struct {
	Grade    string  `json:"grade" validate:"required"`
	Feedback *string `json:"feedback"`
}

// HomeworkListResult bundles a homework page with pagination metadata.
type HomeworkListResult struct {
	Homework   []models.HomeworkDetail
	Pagination models.Pagination
}

// HomeworkService manages assignments and their submissions.
type HomeworkService struct {
	homework  homeworkRepository
	students  homeworkStudentRepository
	classes   homeworkClassChecker
	subjects  homeworkSubjectRepository
	teachers  homeworkTeacherChecker
	policy    *policy.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHomeworkService constructs a HomeworkService.
func NewHomeworkService(homework homeworkRepository, students homeworkStudentRepository, classes homeworkClassChecker, subjects homeworkSubjectRepository, teachers homeworkTeacherChecker, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger) *HomeworkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &HomeworkService{homework: homework, students: students, classes: classes, subjects: subjects, teachers: teachers, policy: policyEngine, validator: validate, logger: logger}
}

// List returns homework visible to the caller. Students and parents
// only see assignments for their own classes.
func (s *HomeworkService) List(ctx context.Context, p policy.Principal, filter models.HomeworkFilter) (*HomeworkListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	if !scope.Unrestricted {
		classIDs, err := s.classIDsForStudents(ctx, scope.StudentIDs)
		if err != nil {
			return nil, err
		}
		if len(classIDs) == 0 {
			return &HomeworkListResult{
				Homework:   []models.HomeworkDetail{},
				Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
			}, nil
		}
		filter.ClassIDs = classIDs
	}

	homework, total, err := s.homework.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list homework")
	}
	return &HomeworkListResult{
		Homework:   homework,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single assignment. Students and parents only see
// assignments for their own classes.
func (s *HomeworkService) Get(ctx context.Context, p policy.Principal, id string) (*models.HomeworkDetail, error) {
	hw, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	if !scope.Unrestricted {
		classIDs, err := s.classIDsForStudents(ctx, scope.StudentIDs)
		if err != nil {
			return nil, err
		}
		allowed := false
		for _, classID := range classIDs {
			if classID == hw.ClassID {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "homework is not assigned to your class")
		}
	}
	return hw, nil
}

func (s *HomeworkService) load(ctx context.Context, id string) (*models.HomeworkDetail, error) {
	hw, err := s.homework.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "homework not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load homework")
	}
	return hw, nil
}

// Create issues an assignment authored by the calling teacher.
func (s *HomeworkService) Create(ctx context.Context, p policy.Principal, req CreateHomeworkRequest) (*models.HomeworkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be in YYYY-MM-DD format")
	}

	teacherID, err := s.resolveAuthor(ctx, p, req.TeacherID)
	if err != nil {
		return nil, err
	}

	if err := s.checkClassSubject(ctx, req.ClassID, req.SubjectID); err != nil {
		return nil, err
	}

	hw := &models.Homework{
		ClassID:      req.ClassID,
		TeacherID:    teacherID,
		SubjectID:    req.SubjectID,
		Title:        req.Title,
		Description:  req.Description,
		AssignedDate: time.Now().UTC().Truncate(24 * time.Hour),
		DueDate:      dueDate,
		Attachments:  req.Attachments,
	}
	if err := s.homework.Create(ctx, hw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create homework")
	}

	s.logger.Info("homework created", zap.String("homework_id", hw.ID), zap.String("class_id", hw.ClassID))
	return s.load(ctx, hw.ID)
}

// Update applies the supplied fields to an assignment. Only the author
// or a privileged user may change it; omitted fields are left
// untouched.
func (s *HomeworkService) Update(ctx context.Context, p policy.Principal, id string, req UpdateHomeworkRequest) (*models.HomeworkDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}

	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, &existing.TeacherID); err != nil {
		return nil, err
	}

	hw := existing.Homework
	if req.ClassID != nil {
		hw.ClassID = *req.ClassID
	}
	if req.SubjectID != nil {
		hw.SubjectID = *req.SubjectID
	}
	if req.Title != nil {
		hw.Title = *req.Title
	}
	if req.Description != nil {
		hw.Description = *req.Description
	}
	if req.DueDate != nil {
		dueDate, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be in YYYY-MM-DD format")
		}
		hw.DueDate = dueDate
	}
	if req.Attachments != nil {
		hw.Attachments = req.Attachments
	}

	if req.ClassID != nil || req.SubjectID != nil {
		if err := s.checkClassSubject(ctx, hw.ClassID, hw.SubjectID); err != nil {
			return nil, err
		}
	}

	if err := s.homework.Update(ctx, &hw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update homework")
	}
	return s.load(ctx, id)
}

// Delete removes an assignment and its submissions after an author
// check.
func (s *HomeworkService) Delete(ctx context.Context, p policy.Principal, id string) error {
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, &existing.TeacherID); err != nil {
		return err
	}
	if err := s.homework.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete homework")
	}
	s.logger.Info("homework deleted", zap.String("homework_id", id))
	return nil
}

// Submit files the calling student's response to an assignment.
func (s *HomeworkService) Submit(ctx context.Context, p policy.Principal, homeworkID string, req SubmitHomeworkRequest) (*models.HomeworkSubmission, error) {
	if req.FileLink == nil && req.TextContent == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a file link or text content is required")
	}

	hw, err := s.load(ctx, homeworkID)
	if err != nil {
		return nil, err
	}

	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	if scope.Unrestricted || len(scope.StudentIDs) != 1 {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may submit homework")
	}
	studentID := scope.StudentIDs[0]

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID == nil || *student.ClassID != hw.ClassID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "homework is not assigned to your class")
	}

	dup, err := s.homework.SubmissionExists(ctx, homeworkID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission")
	}
	if dup {
		return nil, appErrors.Clone(appErrors.ErrConflict, "homework already submitted")
	}

	sub := &models.HomeworkSubmission{
		HomeworkID:    homeworkID,
		StudentID:     studentID,
		FileLink:      req.FileLink,
		TextContent:   req.TextContent,
		SubmittedDate: time.Now().UTC(),
	}
	if err := s.homework.CreateSubmission(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return sub, nil
}

// ListSubmissions returns an assignment's submissions to the author or
// a privileged user.
func (s *HomeworkService) ListSubmissions(ctx context.Context, p policy.Principal, homeworkID string) ([]models.HomeworkSubmission, error) {
	hw, err := s.load(ctx, homeworkID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, &hw.TeacherID); err != nil {
		return nil, err
	}

	subs, err := s.homework.ListSubmissions(ctx, homeworkID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return subs, nil
}

// GradeSubmission records a grade and optional feedback.
func (s *HomeworkService) GradeSubmission(ctx context.Context, p policy.Principal, submissionID string, req GradeSubmissionRequest) (*models.HomeworkSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	sub, err := s.homework.FindSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	hw, err := s.load(ctx, sub.HomeworkID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeAuthor(ctx, p, &hw.TeacherID); err != nil {
		return nil, err
	}

	if err := s.homework.GradeSubmission(ctx, submissionID, req.Grade, req.Feedback); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	sub.Grade = &req.Grade
	sub.Feedback = req.Feedback
	return sub, nil
}

func (s *HomeworkService) resolveAuthor(ctx context.Context, p policy.Principal, requested string) (string, error) {
	if p.Role == models.RoleTeacher {
		return s.policy.TeacherID(ctx, p)
	}
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "teacher_id is required")
	}
	exists, err := s.teachers.ExistsByID(ctx, requested)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher")
	}
	if !exists {
		return "", appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return requested, nil
}

func (s *HomeworkService) checkClassSubject(ctx context.Context, classID, subjectID string) error {
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

func (s *HomeworkService) classIDsForStudents(ctx context.Context, studentIDs []string) ([]string, error) {
	seen := map[string]bool{}
	var classIDs []string
	for _, id := range studentIDs {
		student, err := s.students.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if student.ClassID != nil && !seen[*student.ClassID] {
			seen[*student.ClassID] = true
			classIDs = append(classIDs, *student.ClassID)
		}
	}
	return classIDs, nil
}
