package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/sms-api/internal/models"
)

// LeaveRepository manages persistence for leave requests.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs a LeaveRepository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveDetailColumns = `l.id, l.student_id, l.start_date, l.end_date, l.reason, l.status, l.admin_remarks, l.applied_date,
        l.created_at, l.updated_at, s.name AS student_name`

const leaveDetailBase = `FROM leave_requests l JOIN students s ON s.id = l.student_id`

// List returns leave requests matching the filters plus a total count.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequestDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, "l.student_id IN (?)")
		args = append(args, filter.StudentIDs)
	}
	if filter.Status != "" {
		conditions = append(conditions, "l.status = ?")
		args = append(args, filter.Status)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY l.applied_date DESC LIMIT %d OFFSET %d",
			leaveDetailColumns, leaveDetailBase, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build leave requests query: %w", err)
	}
	var requests []models.LeaveRequestDetail
	if err := r.db.SelectContext(ctx, &requests, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", leaveDetailBase, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build leave requests count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	return requests, total, nil
}

// FindByID fetches a leave request detail by id.
func (r *LeaveRepository) FindByID(ctx context.Context, id string) (*models.LeaveRequestDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE l.id = $1", leaveDetailColumns, leaveDetailBase)
	var detail models.LeaveRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new leave request.
func (r *LeaveRepository) Create(ctx context.Context, req *models.LeaveRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.AppliedDate.IsZero() {
		req.AppliedDate = now
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	const query = `INSERT INTO leave_requests (id, student_id, start_date, end_date, reason, status, admin_remarks, applied_date, created_at, updated_at)
        VALUES (:id, :student_id, :start_date, :end_date, :reason, :status, :admin_remarks, :applied_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// UpdateStatus moves a leave request to a terminal status.
func (r *LeaveRepository) UpdateStatus(ctx context.Context, id string, status models.LeaveStatus, adminRemarks *string) error {
	const query = `UPDATE leave_requests SET status = $1, admin_remarks = $2, updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, status, adminRemarks, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update leave request status: %w", err)
	}
	return nil
}

// Delete removes a leave request.
func (r *LeaveRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM leave_requests WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete leave request: %w", err)
	}
	return nil
}

// CountPending counts leave requests awaiting review.
func (r *LeaveRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM leave_requests WHERE status = 'pending'"); err != nil {
		return 0, fmt.Errorf("count pending leave requests: %w", err)
	}
	return count, nil
}
