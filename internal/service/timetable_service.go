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

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error)
	FindByID(ctx context.Context, id string) (*models.TimetableDetail, error)
	SlotTakenByClass(ctx context.Context, classID, day string, period int, excludeID string) (bool, error)
	SlotTakenByTeacher(ctx context.Context, teacherID, day string, period int, excludeID string) (bool, error)
	Create(ctx context.Context, entry *models.TimetableEntry) error
	Update(ctx context.Context, entry *models.TimetableEntry) error
	Delete(ctx context.Context, id string) error
}

type timetableClassChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

type timetableSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type timetableTeacherChecker interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// CreateTimetableRequest schedules one period slot.
type CreateTimetableRequest struct {
	ClassID      string `json:"class_id" validate:"required"`
	SubjectID    string `json:"subject_id" validate:"required"`
	TeacherID    string `json:"teacher_id" validate:"required"`
	Day          string `json:"day" validate:"required"`
	PeriodNumber int    `json:"period_number" validate:"required,min=1"`
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
}

// UpdateTimetableRequest updates mutable slot fields. Every field is
// optional; fields left out of the payload keep their stored value.
type UpdateTimetableRequest struct {
	ClassID      *string `json:"class_id"`
	SubjectID    *string `json:"subject_id"`
	TeacherID    *string `json:"teacher_id"`
	Day          *string `json:"day"`
	PeriodNumber *int    `json:"period_number" validate:"omitempty,min=1"`
	StartTime    *string `json:"start_time"`
	EndTime      *string `json:"end_time"`
}

// TimetableService manages the weekly schedule grid.
type TimetableService struct {
	timetable timetableRepository
	classes   timetableClassChecker
	subjects  timetableSubjectRepository
	teachers  timetableTeacherChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(timetable timetableRepository, classes timetableClassChecker, subjects timetableSubjectRepository, teachers timetableTeacherChecker, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TimetableService{timetable: timetable, classes: classes, subjects: subjects, teachers: teachers, validator: validate, logger: logger}
}

// List returns timetable entries matching the filter.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableDetail, error) {
	if filter.Day != "" && !models.ValidWeekday(filter.Day) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "day must be a lowercase weekday name")
	}
	entries, err := s.timetable.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable")
	}
	return entries, nil
}

// Get returns a single timetable entry.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.TimetableDetail, error) {
	entry, err := s.timetable.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
	}
	return entry, nil
}

// Create schedules a slot after checking the class and teacher are not
// already booked for it.
func (s *TimetableService) Create(ctx context.Context, req CreateTimetableRequest) (*models.TimetableDetail, error) {
	entry, err := s.buildEntry(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if err := s.timetable.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable entry")
	}
	return s.Get(ctx, entry.ID)
}

// Update applies the supplied fields to a slot, keeping the conflict
// rules against the merged values. Omitted fields are left untouched.
func (s *TimetableService) Update(ctx context.Context, id string, req UpdateTimetableRequest) (*models.TimetableDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	entry := existing.TimetableEntry
	if req.ClassID != nil {
		entry.ClassID = *req.ClassID
	}
	if req.SubjectID != nil {
		entry.SubjectID = *req.SubjectID
	}
	if req.TeacherID != nil {
		entry.TeacherID = *req.TeacherID
	}
	if req.Day != nil {
		entry.Day = *req.Day
	}
	if req.PeriodNumber != nil {
		entry.PeriodNumber = *req.PeriodNumber
	}
	if req.StartTime != nil {
		entry.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		entry.EndTime = *req.EndTime
	}

	if err := s.checkEntry(ctx, &entry, id); err != nil {
		return nil, err
	}

	if err := s.timetable.Update(ctx, &entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable entry")
	}
	return s.Get(ctx, id)
}

// Delete removes a timetable entry.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.timetable.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
	}
	return nil
}

func (s *TimetableService) buildEntry(ctx context.Context, req CreateTimetableRequest, excludeID string) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}

	entry := &models.TimetableEntry{
		ClassID:      req.ClassID,
		SubjectID:    req.SubjectID,
		TeacherID:    req.TeacherID,
		Day:          req.Day,
		PeriodNumber: req.PeriodNumber,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	}
	if err := s.checkEntry(ctx, entry, excludeID); err != nil {
		return nil, err
	}
	return entry, nil
}

// checkEntry validates a fully merged slot against the existence and
// double-booking rules.
func (s *TimetableService) checkEntry(ctx context.Context, entry *models.TimetableEntry, excludeID string) error {
	if !models.ValidWeekday(entry.Day) {
		return appErrors.Clone(appErrors.ErrValidation, "day must be a lowercase weekday name")
	}

	exists, err := s.classes.ExistsByID(ctx, entry.ClassID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	subject, err := s.subjects.FindByID(ctx, entry.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.ClassID != entry.ClassID {
		return appErrors.Clone(appErrors.ErrValidation, "subject does not belong to this class")
	}

	exists, err = s.teachers.ExistsByID(ctx, entry.TeacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	taken, err := s.timetable.SlotTakenByClass(ctx, entry.ClassID, entry.Day, entry.PeriodNumber, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class slot")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "class already has an entry for this day and period")
	}

	taken, err = s.timetable.SlotTakenByTeacher(ctx, entry.TeacherID, entry.Day, entry.PeriodNumber, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher slot")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "teacher is already scheduled for this day and period")
	}
	return nil
}
