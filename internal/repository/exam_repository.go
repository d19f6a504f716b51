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

// ExamRepository manages persistence for exams.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examDetailColumns = `e.id, e.class_id, e.subject_id, e.exam_name, e.date, e.max_marks, e.duration_minutes, e.created_at, e.updated_at,
        cl.class_name || ' - ' || cl.section AS class_name, sub.subject_name AS subject_name`

const examDetailBase = `FROM exams e
        LEFT JOIN classes cl ON cl.id = e.class_id
        LEFT JOIN subjects sub ON sub.id = e.subject_id`

// List returns exams matching the filters ordered by date descending.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.ExamDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY e.date DESC LIMIT %d OFFSET %d", examDetailColumns, examDetailBase, where, limit, offset)
	var exams []models.ExamDetail
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", examDetailBase, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// FindByID fetches an exam detail by id.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.ExamDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", examDetailColumns, examDetailBase)
	var detail models.ExamDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// HasMarks reports whether any marks reference the exam.
func (r *ExamRepository) HasMarks(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM marks WHERE exam_id = $1 LIMIT 1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check exam marks: %w", err)
	}
	return true, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, class_id, subject_id, exam_name, date, max_marks, duration_minutes, created_at, updated_at)
        VALUES (:id, :class_id, :subject_id, :exam_name, :date, :max_marks, :duration_minutes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update rewrites an existing exam row.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET class_id = :class_id, subject_id = :subject_id, exam_name = :exam_name,
        date = :date, max_marks = :max_marks, duration_minutes = :duration_minutes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// Delete removes an exam.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM exams WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// Upcoming returns exams dated within the next horizon days, optionally
// restricted to a set of classes.
func (r *ExamRepository) Upcoming(ctx context.Context, horizon time.Duration, classIDs []string) ([]models.ExamDetail, error) {
	now := time.Now().UTC()
	until := now.Add(horizon)
	query := fmt.Sprintf("SELECT %s %s WHERE e.date >= ? AND e.date <= ?", examDetailColumns, examDetailBase)
	args := []interface{}{now, until}
	if classIDs != nil {
		query += " AND e.class_id IN (?)"
		args = append(args, classIDs)
	}
	query += " ORDER BY e.date ASC"

	inQuery, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build upcoming exams query: %w", err)
	}
	var exams []models.ExamDetail
	if err := r.db.SelectContext(ctx, &exams, r.db.Rebind(inQuery), inArgs...); err != nil {
		return nil, fmt.Errorf("list upcoming exams: %w", err)
	}
	return exams, nil
}

// Recent returns the most recent exams for a set of classes.
func (r *ExamRepository) Recent(ctx context.Context, classIDs []string, limit int) ([]models.ExamDetail, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE e.class_id IN (?) ORDER BY e.date DESC LIMIT %d", examDetailColumns, examDetailBase, limit),
		classIDs)
	if err != nil {
		return nil, fmt.Errorf("build recent exams query: %w", err)
	}
	var exams []models.ExamDetail
	if err := r.db.SelectContext(ctx, &exams, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list recent exams: %w", err)
	}
	return exams, nil
}
