package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	NameTaken(ctx context.Context, name, section, year, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	SetTeacher(ctx context.Context, classID string, teacherID *string) error
	Delete(ctx context.Context, id string) error
}

type classStudentRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.StudentDetail, error)
	CountByClass(ctx context.Context, classID string) (int, error)
}

type classSubjectRepository interface {
	Create(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ListByClass(ctx context.Context, classID string) ([]models.Subject, error)
	Delete(ctx context.Context, id string) error
}

type classTeacherChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateClassRequest creates a class/section.
type CreateClassRequest struct {
	ClassName    string  `json:"class_name" validate:"required"`
	Section      string  `json:"section" validate:"required"`
	AcademicYear string  `json:"academic_year" validate:"required"`
	TeacherID    *string `json:"teacher_id"`
}

// UpdateClassRequest updates mutable class fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateClassRequest struct {
	ClassName    *string `json:"class_name"`
	Section      *string `json:"section"`
	AcademicYear *string `json:"academic_year"`
	TeacherID    *string `json:"teacher_id"`
}

// AssignTeacherRequest sets or clears the class teacher.
type AssignTeacherRequest struct {
	TeacherID *string `json:"teacher_id"`
}

// AddSubjectRequest adds a subject to a class.
type AddSubjectRequest struct {
	SubjectName string  `json:"subject_name" validate:"required"`
	Code        *string `json:"code"`
}

// ClassListResult bundles a class page with pagination metadata.
type ClassListResult struct {
	Classes    []models.ClassDetail
	Pagination models.Pagination
}

// ClassService manages classes, their rosters and subjects.
type ClassService struct {
	classes   classRepository
	students  classStudentRepository
	subjects  classSubjectRepository
	teachers  classTeacherChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(classes classRepository, students classStudentRepository, subjects classSubjectRepository, teachers classTeacherChecker, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{classes: classes, students: students, subjects: subjects, teachers: teachers, validator: validate, logger: logger}
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) (*ClassListResult, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return &ClassListResult{
		Classes:    classes,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Get returns a single class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a class. Name, section and academic year must be unique
// together.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	taken, err := s.classes.NameTaken(ctx, req.ClassName, req.Section, req.AcademicYear, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class with this name, section and academic year already exists")
	}

	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}

	class := &models.Class{
		ClassName:    req.ClassName,
		Section:      req.Section,
		AcademicYear: req.AcademicYear,
		TeacherID:    req.TeacherID,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("name", class.DisplayName()))
	return s.Get(ctx, class.ID)
}

// Update applies the supplied fields to a class, keeping the
// uniqueness rule. Omitted fields are left untouched.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.ClassDetail, error) {
	existing, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	class := existing.Class
	if req.ClassName != nil {
		class.ClassName = *req.ClassName
	}
	if req.Section != nil {
		class.Section = *req.Section
	}
	if req.AcademicYear != nil {
		class.AcademicYear = *req.AcademicYear
	}
	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
		class.TeacherID = req.TeacherID
	}

	if req.ClassName != nil || req.Section != nil || req.AcademicYear != nil {
		taken, err := s.classes.NameTaken(ctx, class.ClassName, class.Section, class.AcademicYear, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class with this name, section and academic year already exists")
		}
	}

	if err := s.classes.Update(ctx, &class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// AssignTeacher sets or clears the class teacher.
func (s *ClassService) AssignTeacher(ctx context.Context, classID string, req AssignTeacherRequest) (*models.ClassDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	if req.TeacherID != nil {
		if err := s.requireTeacher(ctx, *req.TeacherID); err != nil {
			return nil, err
		}
	}
	if err := s.classes.SetTeacher(ctx, classID, req.TeacherID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign teacher")
	}
	return s.Get(ctx, classID)
}

// Delete removes a class. Classes with enrolled students are protected.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.students.CountByClass(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has enrolled students")
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}

	s.logger.Info("class deleted", zap.String("class_id", id))
	return nil
}

// ListStudents returns the class roster.
func (s *ClassService) ListStudents(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// ListSubjects returns the subjects taught in a class.
func (s *ClassService) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// AddSubject attaches a subject to a class.
func (s *ClassService) AddSubject(ctx context.Context, classID string, req AddSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}

	subject := &models.Subject{
		SubjectName: req.SubjectName,
		ClassID:     classID,
		Code:        req.Code,
	}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// DeleteSubject removes a subject from a class.
func (s *ClassService) DeleteSubject(ctx context.Context, classID, subjectID string) error {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.ClassID != classID {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	if err := s.subjects.Delete(ctx, subjectID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return nil
}

func (s *ClassService) requireTeacher(ctx context.Context, teacherID string) error {
	exists, err := s.teachers.ExistsByID(ctx, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}
