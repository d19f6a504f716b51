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

// MarkRepository manages persistence for exam marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository constructs a MarkRepository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

const markDetailColumns = `m.id, m.exam_id, m.student_id, m.marks_scored, m.remarks, m.created_at, m.updated_at,
        s.name AS student_name, e.exam_name AS exam_name, e.max_marks AS max_marks`

const markDetailBase = `FROM marks m
        JOIN students s ON s.id = m.student_id
        JOIN exams e ON e.id = m.exam_id`

// List returns marks matching the filters plus a total count.
func (r *MarkRepository) List(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ExamID != "" {
		conditions = append(conditions, "m.exam_id = ?")
		args = append(args, filter.ExamID)
	}
	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, "m.student_id IN (?)")
		args = append(args, filter.StudentIDs)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY m.created_at DESC LIMIT %d OFFSET %d", markDetailColumns, markDetailBase, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build marks query: %w", err)
	}
	var marks []models.MarkDetail
	if err := r.db.SelectContext(ctx, &marks, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list marks: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", markDetailBase, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build marks count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count marks: %w", err)
	}
	return marks, total, nil
}

// FindByID fetches a mark detail by id.
func (r *MarkRepository) FindByID(ctx context.Context, id string) (*models.MarkDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE m.id = $1", markDetailColumns, markDetailBase)
	var detail models.MarkDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForExamStudent enforces the one-mark-per-(exam, student) rule.
func (r *MarkRepository) ExistsForExamStudent(ctx context.Context, examID, studentID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM marks WHERE exam_id = $1 AND student_id = $2 LIMIT 1", examID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check mark: %w", err)
	}
	return true, nil
}

// Create inserts a new mark.
func (r *MarkRepository) Create(ctx context.Context, mark *models.Mark) error {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = now
	}
	mark.UpdatedAt = now
	const query = `INSERT INTO marks (id, exam_id, student_id, marks_scored, remarks, created_at, updated_at)
        VALUES (:id, :exam_id, :student_id, :marks_scored, :remarks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, mark); err != nil {
		return fmt.Errorf("create mark: %w", err)
	}
	return nil
}

// Update changes the scored marks and remarks.
func (r *MarkRepository) Update(ctx context.Context, id string, marksScored float64, remarks *string) error {
	const query = `UPDATE marks SET marks_scored = $2, remarks = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, marksScored, remarks, time.Now().UTC()); err != nil {
		return fmt.Errorf("update mark: %w", err)
	}
	return nil
}

// Delete removes a mark.
func (r *MarkRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM marks WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete mark: %w", err)
	}
	return nil
}

// ListByStudent returns all marks for one student, newest exams first.
func (r *MarkRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.MarkDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE m.student_id = $1 ORDER BY e.date DESC", markDetailColumns, markDetailBase)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var marks []models.MarkDetail
	if err := r.db.SelectContext(ctx, &marks, query, studentID); err != nil {
		return nil, fmt.Errorf("list student marks: %w", err)
	}
	return marks, nil
}

// AveragePercentage computes a student's mean score percentage across
// all recorded marks. Returns false when no marks exist.
func (r *MarkRepository) AveragePercentage(ctx context.Context, studentID string) (float64, bool, error) {
	const query = `SELECT AVG(100.0 * m.marks_scored / e.max_marks)
        FROM marks m JOIN exams e ON e.id = m.exam_id
        WHERE m.student_id = $1 AND e.max_marks > 0`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, studentID); err != nil {
		return 0, false, fmt.Errorf("average marks: %w", err)
	}
	if !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}
