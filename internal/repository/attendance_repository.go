package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// AttendanceRepository manages persistence for daily attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceDetailColumns = `a.id, a.student_id, a.date, a.status, a.remarks, a.created_at, a.updated_at,
        s.name AS student_name`

func attendanceConditions(filter models.AttendanceFilter) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, "a.student_id IN (?)")
		args = append(args, filter.StudentIDs)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, "s.class_id = ?")
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "a.date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "a.date <= ?")
		args = append(args, *filter.EndDate)
	}
	return conditions, args
}

// List returns attendance records matching the filters plus a total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	base := "FROM attendance a JOIN students s ON s.id = a.student_id"
	conditions, args := attendanceConditions(filter)
	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.date DESC LIMIT %d OFFSET %d", attendanceDetailColumns, base, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build attendance query: %w", err)
	}
	var records []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build attendance count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// FindByID fetches an attendance record by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance a JOIN students s ON s.id = a.student_id WHERE a.id = $1", attendanceDetailColumns)
	var detail models.AttendanceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForDate enforces the one-record-per-(student, date) rule.
func (r *AttendanceRepository) ExistsForDate(ctx context.Context, studentID string, date time.Time) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM attendance WHERE student_id = $1 AND date = $2 LIMIT 1", studentID, date)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return true, nil
}

// AnyExistsForDate reports whether any of the students already has a
// record on the date.
func (r *AttendanceRepository) AnyExistsForDate(ctx context.Context, studentIDs []string, date time.Time) (bool, error) {
	if len(studentIDs) == 0 {
		return false, nil
	}
	query, args, err := sqlx.In("SELECT 1 FROM attendance WHERE date = ? AND student_id IN (?) LIMIT 1", date, studentIDs)
	if err != nil {
		return false, fmt.Errorf("build attendance check: %w", err)
	}
	var one int
	if err := r.db.GetContext(ctx, &one, r.db.Rebind(query), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check bulk attendance: %w", err)
	}
	return true, nil
}

// Create inserts a single attendance record.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance (id, student_id, date, status, remarks, created_at, updated_at)
        VALUES (:id, :student_id, :date, :status, :remarks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// BulkCreate inserts a batch of attendance records in one statement.
func (r *AttendanceRepository) BulkCreate(ctx context.Context, records []models.Attendance) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		records[i].UpdatedAt = now
	}
	const query = `INSERT INTO attendance (id, student_id, date, status, remarks, created_at, updated_at)
        VALUES (:id, :student_id, :date, :status, :remarks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, records); err != nil {
		return fmt.Errorf("bulk create attendance: %w", err)
	}
	return nil
}

// Update changes the status and remarks of a record.
func (r *AttendanceRepository) Update(ctx context.Context, id string, status models.AttendanceStatus, remarks *string) error {
	const query = `UPDATE attendance SET status = $2, remarks = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, remarks, time.Now().UTC()); err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// Delete removes an attendance record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM attendance WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

// StatusCounts aggregates per-status totals for the filtered records.
func (r *AttendanceRepository) StatusCounts(ctx context.Context, filter models.AttendanceFilter) (*models.StatusCounts, error) {
	base := "FROM attendance a JOIN students s ON s.id = a.student_id"
	conditions, args := attendanceConditions(filter)
	query, queryArgs, err := sqlx.In(fmt.Sprintf(`SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE a.status = 'present') AS present,
        COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
        COUNT(*) FILTER (WHERE a.status = 'late') AS late,
        COUNT(*) FILTER (WHERE a.status = 'excused') AS excused
        %s WHERE %s`, base, strings.Join(conditions, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("build attendance stats query: %w", err)
	}
	var counts models.StatusCounts
	if err := r.db.GetContext(ctx, &counts, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, fmt.Errorf("attendance statistics: %w", err)
	}
	return &counts, nil
}

// Defaulters lists students whose attendance percentage falls below the
// threshold, worst first.
func (r *AttendanceRepository) Defaulters(ctx context.Context, threshold float64, classID string) ([]models.Defaulter, error) {
	query := `SELECT s.id AS student_id, s.name AS student_name, s.class_id,
        COUNT(a.id) AS total_days,
        COUNT(a.id) FILTER (WHERE a.status = 'present') AS present_days,
        ROUND(100.0 * COUNT(a.id) FILTER (WHERE a.status = 'present') / COUNT(a.id), 2) AS attendance_percentage
        FROM students s JOIN attendance a ON a.student_id = s.id`
	args := []interface{}{threshold}
	if classID != "" {
		query += " WHERE s.class_id = $2"
		args = append(args, classID)
	}
	query += ` GROUP BY s.id, s.name, s.class_id
        HAVING 100.0 * COUNT(a.id) FILTER (WHERE a.status = 'present') / COUNT(a.id) < $1
        ORDER BY attendance_percentage ASC`

	var defaulters []models.Defaulter
	if err := r.db.SelectContext(ctx, &defaulters, query, args...); err != nil {
		return nil, fmt.Errorf("list defaulters: %w", err)
	}
	return defaulters, nil
}
