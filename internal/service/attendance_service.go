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

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceDetail, error)
	ExistsForDate(ctx context.Context, studentID string, date time.Time) (bool, error)
	AnyExistsForDate(ctx context.Context, studentIDs []string, date time.Time) (bool, error)
	Create(ctx context.Context, record *models.Attendance) error
	BulkCreate(ctx context.Context, records []models.Attendance) error
	Update(ctx context.Context, id string, status models.AttendanceStatus, remarks *string) error
	Delete(ctx context.Context, id string) error
	StatusCounts(ctx context.Context, filter models.AttendanceFilter) (*models.StatusCounts, error)
	Defaulters(ctx context.Context, threshold float64, classID string) ([]models.Defaulter, error)
}

type attendanceStudentRepository interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
	IDsByClass(ctx context.Context, classID string) ([]string, error)
}

// MarkAttendanceRequest records one student's attendance for a day.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string  `json:"status" validate:"required"`
	Remarks   *string `json:"remarks"`
}

// BulkAttendanceEntry is one row of a bulk marking request.
type BulkAttendanceEntry struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Remarks   *string `json:"remarks"`
}

// BulkAttendanceRequest records a whole class in one call.
type BulkAttendanceRequest struct {
	Date    string                `json:"date" validate:"required,datetime=2006-01-02"`
	Entries []BulkAttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// UpdateAttendanceRequest corrects an existing record.
type UpdateAttendanceRequest struct {
	Status  string  `json:"status" validate:"required"`
	Remarks *string `json:"remarks"`
}

// AttendanceListResult bundles an attendance page with pagination.
type AttendanceListResult struct {
	Records    []models.AttendanceDetail
	Pagination models.Pagination
}

// AttendanceService manages daily attendance records.
type AttendanceService struct {
	attendance attendanceRepository
	students   attendanceStudentRepository
	policy     *policy.Engine
	validator  *validator.Validate
	logger     *zap.Logger

	defaulterThreshold float64
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(attendance attendanceRepository, students attendanceStudentRepository, policyEngine *policy.Engine, validate *validator.Validate, logger *zap.Logger, defaulterThreshold float64) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if defaulterThreshold <= 0 {
		defaulterThreshold = 75
	}
	return &AttendanceService{
		attendance:         attendance,
		students:           students,
		policy:             policyEngine,
		validator:          validate,
		logger:             logger,
		defaulterThreshold: defaulterThreshold,
	}
}

// List returns attendance records visible to the caller.
func (s *AttendanceService) List(ctx context.Context, p policy.Principal, filter models.AttendanceFilter) (*AttendanceListResult, error) {
	scope, err := s.policy.StudentScope(ctx, p)
	if err != nil {
		return nil, err
	}
	studentIDs, empty, err := scopedStudentIDs(scope, filter.StudentIDs)
	if err != nil {
		return nil, err
	}
	if empty {
		return &AttendanceListResult{
			Records:    []models.AttendanceDetail{},
			Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize},
		}, nil
	}
	filter.StudentIDs = studentIDs

	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return &AttendanceListResult{
		Records:    records,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// Mark records one student's attendance. A second record for the same
// student and date is rejected.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	status := models.AttendanceStatus(req.Status)
	if !models.ValidAttendanceStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, absent, late, excused")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be in YYYY-MM-DD format")
	}

	exists, err := s.students.ExistsByID(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	dup, err := s.attendance.ExistsForDate(ctx, req.StudentID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing record")
	}
	if dup {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for this student and date")
	}

	record := &models.Attendance{
		StudentID: req.StudentID,
		Date:      date,
		Status:    status,
		Remarks:   req.Remarks,
	}
	if err := s.attendance.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attendance")
	}

	detail, err := s.attendance.FindByID(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return detail, nil
}

// BulkMark records attendance for several students on one date. The
// whole batch is rejected when a student is unknown, listed twice, or
// already has a record for the date.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkAttendanceRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "date must be in YYYY-MM-DD format")
	}

	studentIDs := make([]string, 0, len(req.Entries))
	records := make([]models.Attendance, 0, len(req.Entries))
	seen := make(map[string]bool, len(req.Entries))
	for _, entry := range req.Entries {
		status := models.AttendanceStatus(entry.Status)
		if !models.ValidAttendanceStatus(status) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, absent, late, excused")
		}
		if seen[entry.StudentID] {
			return 0, appErrors.Clone(appErrors.ErrConflict, "request lists a student more than once")
		}
		seen[entry.StudentID] = true

		exists, err := s.students.ExistsByID(ctx, entry.StudentID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
		}
		if !exists {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}

		studentIDs = append(studentIDs, entry.StudentID)
		records = append(records, models.Attendance{
			StudentID: entry.StudentID,
			Date:      date,
			Status:    status,
			Remarks:   entry.Remarks,
		})
	}

	dup, err := s.attendance.AnyExistsForDate(ctx, studentIDs, date)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing records")
	}
	if dup {
		return 0, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for one or more students on this date")
	}

	if err := s.attendance.BulkCreate(ctx, records); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attendance records")
	}

	s.logger.Info("bulk attendance recorded", zap.String("date", req.Date), zap.Int("count", len(records)))
	return len(records), nil
}

// Update corrects the status or remarks of an existing record.
func (s *AttendanceService) Update(ctx context.Context, id string, req UpdateAttendanceRequest) (*models.AttendanceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	status := models.AttendanceStatus(req.Status)
	if !models.ValidAttendanceStatus(status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, absent, late, excused")
	}

	if _, err := s.findRecord(ctx, id); err != nil {
		return nil, err
	}

	if err := s.attendance.Update(ctx, id, status, req.Remarks); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	return s.findRecord(ctx, id)
}

// Delete removes an attendance record.
func (s *AttendanceService) Delete(ctx context.Context, id string) error {
	if _, err := s.findRecord(ctx, id); err != nil {
		return err
	}
	if err := s.attendance.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	return nil
}

// StudentStatistics aggregates one student's attendance over an
// optional date range after an ownership check.
func (s *AttendanceService) StudentStatistics(ctx context.Context, p policy.Principal, studentID string, start, end *time.Time) (*models.AttendanceStatistics, error) {
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

	counts, err := s.attendance.StatusCounts(ctx, models.AttendanceFilter{
		StudentIDs: []string{studentID},
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	return statisticsFromCounts(counts), nil
}

// ClassStatistics aggregates attendance for a whole class.
func (s *AttendanceService) ClassStatistics(ctx context.Context, classID string, start, end *time.Time) (*models.AttendanceStatistics, error) {
	counts, err := s.attendance.StatusCounts(ctx, models.AttendanceFilter{
		ClassID:   classID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	return statisticsFromCounts(counts), nil
}

// Defaulters lists students below the attendance threshold, optionally
// restricted to one class.
func (s *AttendanceService) Defaulters(ctx context.Context, classID string) ([]models.Defaulter, error) {
	defaulters, err := s.attendance.Defaulters(ctx, s.defaulterThreshold, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defaulters")
	}
	return defaulters, nil
}

// ClassRoster resolves a class roster so handlers can pre-fill bulk
// marking forms.
func (s *AttendanceService) ClassRoster(ctx context.Context, classID string) ([]string, error) {
	ids, err := s.students.IDsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	return ids, nil
}

func (s *AttendanceService) findRecord(ctx context.Context, id string) (*models.AttendanceDetail, error) {
	record, err := s.attendance.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record, nil
}

func statisticsFromCounts(counts *models.StatusCounts) *models.AttendanceStatistics {
	stats := &models.AttendanceStatistics{
		TotalDays: counts.Total,
		Present:   counts.Present,
		Absent:    counts.Absent,
		Late:      counts.Late,
		Excused:   counts.Excused,
	}
	if counts.Total > 0 {
		attended := counts.Present + counts.Late
		stats.AttendancePercentage = 100 * float64(attended) / float64(counts.Total)
	}
	return stats
}
