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

// HomeworkRepository manages persistence for homework and submissions.
type HomeworkRepository struct {
	db *sqlx.DB
}

// NewHomeworkRepository constructs a HomeworkRepository.
func NewHomeworkRepository(db *sqlx.DB) *HomeworkRepository {
	return &HomeworkRepository{db: db}
}

const homeworkDetailColumns = `h.id, h.class_id, h.teacher_id, h.subject_id, h.title, h.description, h.assigned_date, h.due_date, h.attachments, h.created_at, h.updated_at,
        cl.class_name || ' - ' || cl.section AS class_name, sub.subject_name AS subject_name, t.name AS teacher_name`

const homeworkDetailBase = `FROM homework h
        LEFT JOIN classes cl ON cl.id = h.class_id
        LEFT JOIN subjects sub ON sub.id = h.subject_id
        LEFT JOIN teachers t ON t.id = h.teacher_id`

// List returns homework matching the filters plus a total count. A
// non-nil ClassIDs restricts results to those classes.
func (r *HomeworkRepository) List(ctx context.Context, filter models.HomeworkFilter) ([]models.HomeworkDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassIDs != nil {
		conditions = append(conditions, "h.class_id IN (?)")
		args = append(args, filter.ClassIDs)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, "h.teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, "h.subject_id = ?")
		args = append(args, filter.SubjectID)
	}

	where := strings.Join(conditions, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query, queryArgs, err := sqlx.In(
		fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY h.due_date DESC LIMIT %d OFFSET %d", homeworkDetailColumns, homeworkDetailBase, where, limit, offset),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build homework query: %w", err)
	}
	var items []models.HomeworkDetail
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("list homework: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", homeworkDetailBase, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build homework count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count homework: %w", err)
	}
	return items, total, nil
}

// FindByID fetches a homework detail by id.
func (r *HomeworkRepository) FindByID(ctx context.Context, id string) (*models.HomeworkDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE h.id = $1", homeworkDetailColumns, homeworkDetailBase)
	var detail models.HomeworkDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new homework item.
func (r *HomeworkRepository) Create(ctx context.Context, hw *models.Homework) error {
	if hw.ID == "" {
		hw.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if hw.CreatedAt.IsZero() {
		hw.CreatedAt = now
	}
	hw.UpdatedAt = now
	const query = `INSERT INTO homework (id, class_id, teacher_id, subject_id, title, description, assigned_date, due_date, attachments, created_at, updated_at)
        VALUES (:id, :class_id, :teacher_id, :subject_id, :title, :description, :assigned_date, :due_date, :attachments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hw); err != nil {
		return fmt.Errorf("create homework: %w", err)
	}
	return nil
}

// Update rewrites an existing homework row.
func (r *HomeworkRepository) Update(ctx context.Context, hw *models.Homework) error {
	hw.UpdatedAt = time.Now().UTC()
	const query = `UPDATE homework SET class_id = :class_id, subject_id = :subject_id, title = :title, description = :description,
        assigned_date = :assigned_date, due_date = :due_date, attachments = :attachments, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, hw); err != nil {
		return fmt.Errorf("update homework: %w", err)
	}
	return nil
}

// Delete removes a homework item and its submissions.
func (r *HomeworkRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM homework_submissions WHERE homework_id = $1", id); err != nil {
		return fmt.Errorf("delete homework submissions: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM homework WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete homework: %w", err)
	}
	return nil
}

// CreateSubmission stores a student's homework submission.
func (r *HomeworkRepository) CreateSubmission(ctx context.Context, sub *models.HomeworkSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	const query = `INSERT INTO homework_submissions (id, homework_id, student_id, file_link, text_content, submitted_date, grade, feedback, created_at, updated_at)
        VALUES (:id, :homework_id, :student_id, :file_link, :text_content, :submitted_date, :grade, :feedback, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// SubmissionExists reports whether the student already submitted.
func (r *HomeworkRepository) SubmissionExists(ctx context.Context, homeworkID, studentID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM homework_submissions WHERE homework_id = $1 AND student_id = $2 LIMIT 1", homeworkID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check submission: %w", err)
	}
	return true, nil
}

// FindSubmission fetches one submission by id.
func (r *HomeworkRepository) FindSubmission(ctx context.Context, id string) (*models.HomeworkSubmission, error) {
	var sub models.HomeworkSubmission
	if err := r.db.GetContext(ctx, &sub, "SELECT * FROM homework_submissions WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissions returns all submissions for a homework item.
func (r *HomeworkRepository) ListSubmissions(ctx context.Context, homeworkID string) ([]models.HomeworkSubmission, error) {
	var subs []models.HomeworkSubmission
	const query = `SELECT * FROM homework_submissions WHERE homework_id = $1 ORDER BY submitted_date DESC`
	if err := r.db.SelectContext(ctx, &subs, query, homeworkID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// GradeSubmission records a grade and feedback.
func (r *HomeworkRepository) GradeSubmission(ctx context.Context, id string, grade string, feedback *string) error {
	const query = `UPDATE homework_submissions SET grade = $2, feedback = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, time.Now().UTC()); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

// CountSubmissions returns the number of submissions per homework id.
func (r *HomeworkRepository) CountSubmissions(ctx context.Context, homeworkID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM homework_submissions WHERE homework_id = $1", homeworkID); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return total, nil
}

// SubmittedHomeworkIDs returns ids of homework the student already
// submitted, from the given candidate set.
func (r *HomeworkRepository) SubmittedHomeworkIDs(ctx context.Context, studentID string, homeworkIDs []string) ([]string, error) {
	if len(homeworkIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT homework_id FROM homework_submissions WHERE student_id = ? AND homework_id IN (?)", studentID, homeworkIDs)
	if err != nil {
		return nil, fmt.Errorf("build submitted homework query: %w", err)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list submitted homework: %w", err)
	}
	return ids, nil
}
